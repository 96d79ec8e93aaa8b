package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := NewPacket(Header{Sequence: 1, Ack: 0, AckBitfield: 0})
	require.NoError(t, p.AddEvent([]byte("hello")))
	require.NoError(t, p.AddEvent([]byte("world")))

	data, err := p.Encode()
	require.NoError(t, err)

	decoded, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, p.Header, decoded.Header)
	assert.Equal(t, p.Events(), decoded.Events())
}

func TestPacketAddEventBeforeEncodeAlwaysAccepted(t *testing.T) {
	p := NewPacket(Header{})
	big := bytes.Repeat([]byte{0xAB}, MaxDatagramSize*2)
	err := p.AddEvent(big)
	assert.NoError(t, err, "AddEvent before any caching must always be accepted")
}

func TestPacketEncodeOverflow(t *testing.T) {
	p := NewPacket(Header{})
	big := bytes.Repeat([]byte{0xAB}, MaxDatagramSize)
	require.NoError(t, p.AddEvent(big))
	_, err := p.Encode()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestPacketAddEventOverflowAfterCaching(t *testing.T) {
	p := NewPacket(Header{})
	require.NoError(t, p.AddEvent([]byte("small")))
	_, err := p.Encode()
	require.NoError(t, err)

	big := bytes.Repeat([]byte{0xAB}, MaxDatagramSize)
	err = p.AddEvent(big)
	assert.ErrorIs(t, err, ErrOverflow)
	// packet remains usable in its pre-overflow state
	assert.Len(t, p.Events(), 1)
	data, err := p.Encode()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestPacketIncrementalAppendAfterCache(t *testing.T) {
	p := NewPacket(Header{Sequence: 9})
	require.NoError(t, p.AddEvent([]byte("a")))
	first, err := p.Encode()
	require.NoError(t, err)

	require.NoError(t, p.AddEvent([]byte("b")))
	second, err := p.Encode()
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(second, first))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, p.Events())
}

func TestDecodePacketMalformedEventBlock(t *testing.T) {
	h := Header{Sequence: 1}.Bytes()
	// length prefix claims 10 bytes but none follow
	h = append(h, 0x00, 0x0A)
	_, err := DecodePacket(h)
	assert.ErrorIs(t, err, ErrMalformedEventBlock)
}

func TestClientPacketRoundTrip(t *testing.T) {
	p := NewClientPacket(Header{Sequence: 3, Ack: 2}, 77)
	require.NoError(t, p.AddEvent([]byte("move")))

	data, err := p.Encode()
	require.NoError(t, err)

	decoded, err := DecodeClientPacket(data)
	require.NoError(t, err)
	assert.Equal(t, p.Header, decoded.Header)
	assert.Equal(t, uint16(77), decoded.TimeOrder)
	assert.Equal(t, p.Events(), decoded.Events())
}

func TestServerPacketRoundTrip(t *testing.T) {
	p := NewServerPacket(Header{Sequence: 5, Ack: 4}, []byte("state-delta"))
	require.NoError(t, p.AddEvent([]byte("spawn")))

	data, err := p.Encode()
	require.NoError(t, err)

	decoded, err := DecodeServerPacket(data)
	require.NoError(t, err)
	assert.Equal(t, p.Header, decoded.Header)
	assert.Equal(t, []byte("state-delta"), decoded.StateUpdate)
	assert.Equal(t, p.Events(), decoded.Events())
}

func TestDecodeProtocolMismatchIgnoredSilently(t *testing.T) {
	_, err := DecodeClientPacket([]byte("not-a-pulsenet-datagram........"))
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}
