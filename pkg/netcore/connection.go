package netcore

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pulsenet/pkg/metrics"
	"pulsenet/pkg/sqn"
	"pulsenet/pkg/wire"
)

// ErrDuplicateSequence is returned by Recv when the packet's sequence has
// already been observed, or is older than the 32-entry bitfield window
// (spec.md §4.3, §9 "Open question" — the original's fall-through on
// d > 32 is normalized here to the same rejection). The caller drops the
// packet with no further bookkeeping side effects.
var ErrDuplicateSequence = errors.New("netcore: duplicate or stale sequence")

// wirePacket is the subset of wire.Packet/ClientPacket/ServerPacket a
// Connection needs to drain the outgoing queue into a packet and send it.
type wirePacket interface {
	AddEvent(event []byte) error
	Encode() ([]byte, error)
}

type pendingEvent struct {
	event       Event
	callbackSeq sqn.SQN
}

// Connection is the per-peer reliability/congestion state machine
// (spec.md §3-4). ClientConnection and ServerConnection embed it and
// supply the packet-building and receive-path specialization spec.md
// §4.10/§4.11 describe.
type Connection struct {
	RemoteAddr *net.UDPAddr
	socket     net.PacketConn
	handler    EventHandler
	sink       EventSink
	log        zerolog.Logger
	metrics    *metrics.Collector
	tunables   Tunables

	buildPacket func(h wire.Header) wirePacket

	mu               sync.Mutex
	localSequence    sqn.SQN
	remoteSequence   sqn.SQN
	ackBitfield      uint32
	latency          time.Duration
	status           Status
	quality          Quality
	sendInterval     time.Duration
	lastRecvTime     time.Time
	pendingAcks      map[sqn.SQN]time.Time
	eventCallbackSeq sqn.SQN
	eventsWithCB     map[sqn.SQN][]sqn.SQN
	callbacks        map[sqn.SQN]eventCallbacks

	outgoing *queue[pendingEvent]
	incoming *queue[Event]
}

func newConnection(remoteAddr *net.UDPAddr, socket net.PacketConn, handler EventHandler, sink EventSink, log zerolog.Logger, m *metrics.Collector, tunables Tunables) *Connection {
	return &Connection{
		RemoteAddr:   remoteAddr,
		socket:       socket,
		handler:      handler,
		sink:         sink,
		log:          log.With().Str("remote", remoteAddr.String()).Logger(),
		metrics:      m,
		tunables:     tunables.withDefaults(),
		status:       StatusConnecting,
		quality:      QualityGood,
		sendInterval: GoodSendInterval,
		lastRecvTime: time.Now(),
		pendingAcks:  make(map[sqn.SQN]time.Time),
		eventsWithCB: make(map[sqn.SQN][]sqn.SQN),
		callbacks:    make(map[sqn.SQN]eventCallbacks),
		outgoing:     newQueue[pendingEvent](),
		incoming:     newQueue[Event](),
	}
}

// Status returns the connection's current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	c.mu.Unlock()
	if changed {
		c.log.Info().Str("status", s.String()).Msg("connection status changed")
	}
}

// Latency returns the smoothed round-trip time estimate.
func (c *Connection) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// DispatchEvent enqueues event for sending, optionally registering ack/
// timeout callbacks against it (spec.md §4.9). Safe to call from any
// goroutine.
func (c *Connection) DispatchEvent(event Event, onAck, onTimeout Callback) {
	var callbackSeq sqn.SQN
	if !onAck.isZero() || !onTimeout.isZero() {
		c.mu.Lock()
		c.eventCallbackSeq = c.eventCallbackSeq.Next()
		callbackSeq = c.eventCallbackSeq
		c.callbacks[callbackSeq] = eventCallbacks{onAck: onAck, onTimeout: onTimeout}
		c.mu.Unlock()
	}
	c.outgoing.Put(pendingEvent{event: event, callbackSeq: callbackSeq})
}

// updateRemoteInfo implements the ack-update algorithm of spec.md §4.3.
// Must be called with c.mu held.
func (c *Connection) updateRemoteInfo(received sqn.SQN) error {
	if c.remoteSequence == sqn.None {
		c.remoteSequence = received
		return nil
	}
	d := c.remoteSequence.Sub(received)
	switch {
	case d < 0:
		// received is newer: every previously-tracked offset grows by
		// shift, and the old remoteSequence itself becomes the bit at
		// offset shift-1. Go's shift operators zero out naturally once
		// shift reaches the bitfield's width, so a jump larger than the
		// 32-entry window drops the whole history with no special case.
		shift := uint(-d)
		c.remoteSequence = received
		c.ackBitfield = (c.ackBitfield << shift) | (1 << (shift - 1))
		return nil
	case d == 0:
		return ErrDuplicateSequence
	default: // d > 0
		if d > 32 {
			return ErrDuplicateSequence
		}
		bit := uint32(1) << uint(d-1)
		if c.ackBitfield&bit != 0 {
			return ErrDuplicateSequence
		}
		c.ackBitfield |= bit
		return nil
	}
}

// resolvePendingAcks implements spec.md §4.4: scan the pending-ack table
// against the received (ack, ackBitfield), firing on_ack/on_timeout
// callbacks and dropping resolved entries. Must be called without c.mu
// held — it takes the lock only for the bookkeeping snapshot/mutation and
// invokes callbacks outside the lock so a slow callback never blocks the
// send path.
func (c *Connection) resolvePendingAcks(ctx context.Context, ack sqn.SQN, ackBitfield uint32) {
	now := time.Now()

	type resolution struct {
		seq     sqn.SQN
		acked   bool
		rtt     time.Duration
		fire    []eventCallbacks
	}

	c.mu.Lock()
	pending := make([]sqn.SQN, 0, len(c.pendingAcks))
	for p := range c.pendingAcks {
		pending = append(pending, p)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	var resolutions []resolution
	for _, p := range pending {
		sendTime := c.pendingAcks[p]
		pd := ack.Sub(p)
		acked := pd == 0 || (pd > 0 && pd <= 32 && ackBitfield&(1<<uint(pd-1)) != 0)
		if acked {
			r := resolution{seq: p, acked: true, rtt: now.Sub(sendTime)}
			for _, cbSeq := range c.eventsWithCB[p] {
				r.fire = append(r.fire, c.callbacks[cbSeq])
				delete(c.callbacks, cbSeq)
			}
			delete(c.eventsWithCB, p)
			delete(c.pendingAcks, p)
			resolutions = append(resolutions, r)
		} else if now.Sub(sendTime) > c.tunables.PacketTimeout {
			r := resolution{seq: p, acked: false}
			for _, cbSeq := range c.eventsWithCB[p] {
				r.fire = append(r.fire, c.callbacks[cbSeq])
				delete(c.callbacks, cbSeq)
			}
			delete(c.eventsWithCB, p)
			delete(c.pendingAcks, p)
			resolutions = append(resolutions, r)
		}
	}
	tableSize := len(c.pendingAcks)
	c.mu.Unlock()
	c.metrics.SetPendingAckTableSize(c.RemoteAddr.String(), tableSize)

	for _, r := range resolutions {
		if r.acked {
			c.updateLatency(r.rtt)
			c.metrics.ObservePacketAcked(c.RemoteAddr.String())
			for _, cbs := range r.fire {
				if !cbs.onAck.isZero() {
					cbs.onAck.invoke(ctx, c.log)
				}
			}
		} else {
			c.metrics.ObservePacketTimeout(c.RemoteAddr.String())
			for _, cbs := range r.fire {
				if !cbs.onTimeout.isZero() {
					cbs.onTimeout.invoke(ctx, c.log)
				}
			}
		}
	}
}

// updateLatency applies the exponential moving average of spec.md §4.5.
func (c *Connection) updateLatency(rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = c.latency + time.Duration(0.1*(float64(rtt)-float64(c.latency)))
	c.metrics.SetLatency(c.RemoteAddr.String(), c.latency.Seconds())
}

// recvCommon implements the shared half of spec.md §4.8/§4.9: ack
// bookkeeping, pending-ack resolution, and delivery of events to the
// incoming queue/event sink. Returns ErrDuplicateSequence if the packet
// must be dropped with no further side effects.
func (c *Connection) recvCommon(ctx context.Context, h wire.Header, events [][]byte) error {
	c.mu.Lock()
	c.lastRecvTime = time.Now()
	err := c.updateRemoteInfo(sqn.SQN(h.Sequence))
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.setStatus(StatusConnected)

	c.resolvePendingAcks(ctx, sqn.SQN(h.Ack), h.AckBitfield)

	for _, raw := range events {
		event := DecodeEvent(raw)
		c.incoming.Put(event)
		if c.sink != nil {
			c.sink.PushEvent(event)
		}
	}
	return nil
}

// nextHeader builds the header for the next outbound packet under c.mu.
func (c *Connection) nextHeader() wire.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localSequence = c.localSequence.Next()
	return wire.Header{
		Sequence:    uint16(c.localSequence),
		Ack:         uint16(c.remoteSequence),
		AckBitfield: c.ackBitfield,
	}
}

// sendNextPacket implements spec.md §4.7 steps 2-5.
func (c *Connection) sendNextPacket() error {
	h := c.nextHeader()
	localSeq := sqn.SQN(h.Sequence)
	pkt := c.buildPacket(h)

	for i := 0; i < MaxEventsPerPacket; i++ {
		pe, ok := c.outgoing.TryGet()
		if !ok {
			break
		}
		if err := pkt.AddEvent(pe.event.Encode()); err != nil {
			// Oversize event for an otherwise-ready packet: drop it rather
			// than wedge the send loop. Its callback ID is not attached to
			// this packet, so neither its on_ack nor its on_timeout fires.
			c.log.Warn().Err(err).Msg("dropping event that would overflow packet")
			continue
		}
		if pe.callbackSeq != sqn.None {
			c.mu.Lock()
			c.eventsWithCB[localSeq] = append(c.eventsWithCB[localSeq], pe.callbackSeq)
			c.mu.Unlock()
		}
	}

	data, err := pkt.Encode()
	if err != nil {
		return err
	}
	if _, err := c.socket.WriteTo(data, c.RemoteAddr); err != nil {
		return err
	}
	c.mu.Lock()
	c.pendingAcks[localSeq] = time.Now()
	c.mu.Unlock()
	c.metrics.IncPacketsSent(c.RemoteAddr.String())
	return nil
}

// SendLoop runs the send + congestion-monitor task pair of spec.md §4.7
// until the connection times out or ctx is cancelled.
func (c *Connection) SendLoop(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return c.congestionMonitorLoop(gCtx) })

	for {
		select {
		case <-loopCtx.Done():
			cancel()
			return g.Wait()
		default:
		}

		iterStart := time.Now()
		c.mu.Lock()
		idle := iterStart.Sub(c.lastRecvTime)
		c.mu.Unlock()
		if idle > c.tunables.ConnectionTimeout {
			c.setStatus(StatusDisconnected)
			c.log.Warn().Msg("connection timed out, stopping send loop")
			break
		}

		if err := c.sendNextPacket(); err != nil {
			c.log.Error().Err(err).Msg("failed to send packet")
		}

		c.mu.Lock()
		interval := c.sendInterval
		c.mu.Unlock()
		elapsed := time.Since(iterStart)
		if sleep := interval - elapsed; sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-loopCtx.Done():
			}
		}
	}
	cancel()
	return g.Wait()
}

// congestionMonitorLoop runs the hysteretic controller of spec.md §4.6
// every MinThrottleTime/2.
func (c *Connection) congestionMonitorLoop(ctx context.Context) error {
	now := time.Now()
	state := throttleState{throttleTime: MinThrottleTime, lastQualityChange: now, lastGoodMilestone: now}
	ticker := time.NewTicker(MinThrottleTime / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			c.evaluateThrottle(t, &state)
		}
	}
}

type throttleState struct {
	throttleTime      time.Duration
	lastQualityChange time.Time
	lastGoodMilestone time.Time
}

// evaluateThrottle is the pure state transition of spec.md §4.6, isolated
// from the ticker so it can be unit-tested without real sleeps.
func (c *Connection) evaluateThrottle(t time.Time, state *throttleState) {
	c.mu.Lock()
	quality := c.quality
	latency := c.latency
	c.mu.Unlock()

	switch quality {
	case QualityGood:
		if latency > c.tunables.LatencyThreshold {
			c.mu.Lock()
			c.quality = QualityBad
			c.sendInterval = BadSendInterval
			c.mu.Unlock()
			if t.Sub(state.lastQualityChange) < state.throttleTime {
				state.throttleTime *= 2
				if state.throttleTime > MaxThrottleTime {
					state.throttleTime = MaxThrottleTime
				}
			}
			state.lastQualityChange = t
			c.metrics.SetQuality(c.RemoteAddr.String(), QualityBad.String())
			c.log.Info().Dur("latency", latency).Msg("congestion: switching to bad quality")
		} else if t.Sub(state.lastGoodMilestone) > state.throttleTime {
			c.mu.Lock()
			c.sendInterval = GoodSendInterval
			c.mu.Unlock()
			state.throttleTime /= 2
			if state.throttleTime < MinThrottleTime {
				state.throttleTime = MinThrottleTime
			}
			state.lastGoodMilestone = t
		}
	case QualityBad:
		if latency < c.tunables.LatencyThreshold {
			c.mu.Lock()
			c.quality = QualityGood
			c.mu.Unlock()
			state.lastQualityChange = t
			state.lastGoodMilestone = t
			c.metrics.SetQuality(c.RemoteAddr.String(), QualityGood.String())
			c.log.Info().Dur("latency", latency).Msg("congestion: switching to good quality")
		}
	}
}

// EventLoop pops events from the incoming queue and dispatches them to the
// handler, skipping unknown event types (spec.md §4.9). It polls rather
// than blocking on the queue so a cancelled ctx always unblocks it
// promptly, even for a server connection whose queue outlives any single
// client session across a reconnect.
func (c *Connection) EventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		event, ok := c.incoming.TryGet()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		if c.handler != nil && c.handler.HasEventType(event.Type) {
			c.handler.Handle(event)
		}
	}
}

// Close unblocks any goroutine waiting on the incoming queue.
func (c *Connection) Close() {
	c.incoming.Close()
	c.outgoing.Close()
}
