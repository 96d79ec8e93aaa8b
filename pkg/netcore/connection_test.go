package netcore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsenet/pkg/sqn"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	return newConnection(nil, nil, nil, nil, zerolog.Nop(), nil, Tunables{})
}

func TestUpdateRemoteInfoFirstPacketSeedsSequence(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.updateRemoteInfo(42))
	assert.Equal(t, sqn.SQN(42), c.remoteSequence)
	assert.Equal(t, uint32(0), c.ackBitfield)
}

func TestUpdateRemoteInfoInOrderShiftsBitfieldAndSetsNewestBit(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.updateRemoteInfo(10))
	require.NoError(t, c.updateRemoteInfo(11))
	assert.Equal(t, sqn.SQN(11), c.remoteSequence)
	assert.Equal(t, uint32(1), c.ackBitfield)
}

func TestUpdateRemoteInfoOutOfOrderSetsHistoricalBit(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.updateRemoteInfo(10))
	require.NoError(t, c.updateRemoteInfo(13)) // skip 11, 12; bit for 10 (offset 3) is set
	require.NoError(t, c.updateRemoteInfo(12)) // fills in the offset-1 bit, 11 remains unset
	assert.Equal(t, uint32(1<<2|1), c.ackBitfield)
}

func TestUpdateRemoteInfoDuplicateIsRejected(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.updateRemoteInfo(5))
	require.NoError(t, c.updateRemoteInfo(6))
	err := c.updateRemoteInfo(6)
	assert.ErrorIs(t, err, ErrDuplicateSequence)
}

func TestUpdateRemoteInfoStaleBeyondWindowIsRejected(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.updateRemoteInfo(100))
	err := c.updateRemoteInfo(100 - 33)
	assert.ErrorIs(t, err, ErrDuplicateSequence)
}

func TestUpdateRemoteInfoAlreadyAckedIsRejected(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.updateRemoteInfo(10))
	require.NoError(t, c.updateRemoteInfo(12)) // bit for 11 is 0, newest is 12
	err := c.updateRemoteInfo(10)
	assert.ErrorIs(t, err, ErrDuplicateSequence)
}

func TestUpdateRemoteInfoLargeForwardJumpResetsBitfield(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.updateRemoteInfo(10))
	require.NoError(t, c.updateRemoteInfo(200))
	assert.Equal(t, uint32(0), c.ackBitfield)
}

func TestResolvePendingAcksFiresOnAckAndComputesRTT(t *testing.T) {
	c := newTestConnection(t)
	sendTime := time.Now().Add(-50 * time.Millisecond)
	c.pendingAcks[1] = sendTime
	fired := false
	c.eventsWithCB[1] = []sqn.SQN{1}
	c.callbacks[1] = eventCallbacks{onAck: SyncCallback(func() { fired = true })}

	c.resolvePendingAcks(context.Background(), 1, 0)

	assert.True(t, fired)
	assert.Empty(t, c.pendingAcks)
	assert.Greater(t, c.latency, time.Duration(0))
}

func TestResolvePendingAcksFiresOnTimeoutForStaleUnacked(t *testing.T) {
	c := newTestConnection(t)
	c.pendingAcks[7] = time.Now().Add(-2 * time.Second)
	timedOut := false
	c.eventsWithCB[7] = []sqn.SQN{1}
	c.callbacks[1] = eventCallbacks{onTimeout: SyncCallback(func() { timedOut = true })}

	c.resolvePendingAcks(context.Background(), 0, 0)

	assert.True(t, timedOut)
	assert.Empty(t, c.pendingAcks)
}

func TestResolvePendingAcksLeavesFreshUnackedPending(t *testing.T) {
	c := newTestConnection(t)
	c.pendingAcks[9] = time.Now()

	c.resolvePendingAcks(context.Background(), 0, 0)

	assert.Len(t, c.pendingAcks, 1)
}

func TestEvaluateThrottleSwitchesToBadOnHighLatency(t *testing.T) {
	c := newTestConnection(t)
	c.latency = 400 * time.Millisecond
	state := &throttleState{throttleTime: MinThrottleTime, lastQualityChange: time.Now().Add(-time.Hour), lastGoodMilestone: time.Now()}

	c.evaluateThrottle(time.Now(), state)

	assert.Equal(t, QualityBad, c.quality)
	assert.Equal(t, BadSendInterval, c.sendInterval)
}

func TestEvaluateThrottleReturnsToGoodOnceLatencyDrops(t *testing.T) {
	c := newTestConnection(t)
	c.quality = QualityBad
	c.latency = 50 * time.Millisecond
	state := &throttleState{throttleTime: MinThrottleTime, lastQualityChange: time.Now(), lastGoodMilestone: time.Now()}

	c.evaluateThrottle(time.Now(), state)

	assert.Equal(t, QualityGood, c.quality)
}

func TestEvaluateThrottleDoublesThrottleTimeOnRepeatedFlapping(t *testing.T) {
	c := newTestConnection(t)
	c.latency = 400 * time.Millisecond
	now := time.Now()
	state := &throttleState{throttleTime: MinThrottleTime, lastQualityChange: now, lastGoodMilestone: now}

	c.evaluateThrottle(now.Add(100*time.Millisecond), state)

	assert.Equal(t, 2*MinThrottleTime, state.throttleTime)
}

func TestDispatchEventRegistersCallbacksOnlyWhenProvided(t *testing.T) {
	c := newTestConnection(t)
	c.DispatchEvent(Event{Type: 1}, Callback{}, Callback{})
	assert.Empty(t, c.callbacks)

	c.DispatchEvent(Event{Type: 2}, SyncCallback(func() {}), Callback{})
	assert.Len(t, c.callbacks, 1)
}
