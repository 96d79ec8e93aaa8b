// Package netcore is the reliability-and-congestion core: the Connection
// state machine (sliding-window ack, RTT smoothing, congestion control,
// event-callback bookkeeping) and the server-side demultiplexer built on
// top of pkg/wire framing. Grounded on the teacher's Session/RakNetHandler
// (source/protocol/raknet.go, source/server/server.go) generalized from
// SA-MP/RakNet semantics to the Connection/ClientConnection/
// ServerConnection/Server split described by original_source/pygase's
// connection.py, the implementation this spec was distilled from.
package netcore

import (
	"encoding/binary"
	"time"
)

// Status is the lifecycle state of a Connection.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Quality is the coarse congestion-avoidance state driving send pacing.
type Quality int

const (
	QualityGood Quality = iota
	QualityBad
)

func (q Quality) String() string {
	if q == QualityBad {
		return "bad"
	}
	return "good"
}

// Event is a pulsenet event: a type tag for handler dispatch plus an
// opaque payload. General serialization of domain event payloads is out of
// scope for the core (spec.md §1 Non-goals); Event only wraps a type tag
// the way the wire event block needs one for handler routing.
type Event struct {
	Type    uint16
	Payload []byte
}

// Encode prepends the 2-byte big-endian type tag to the payload, producing
// the opaque blob the wire event block carries.
func (e Event) Encode() []byte {
	buf := make([]byte, 2+len(e.Payload))
	binary.BigEndian.PutUint16(buf[:2], e.Type)
	copy(buf[2:], e.Payload)
	return buf
}

// DecodeEvent parses an Event previously produced by Encode.
func DecodeEvent(b []byte) Event {
	if len(b) < 2 {
		return Event{}
	}
	return Event{Type: binary.BigEndian.Uint16(b[:2]), Payload: b[2:]}
}

// EventHandler is the consumed contract for dispatching received events
// (spec.md §6, "Event handler interface"). Handle may do its work
// synchronously or kick off async work internally and block until it
// completes — either way the event loop calls it and waits for it to
// return before popping the next event, matching "async handlers are
// awaited before the next event" (spec.md §4.9).
type EventHandler interface {
	HasEventType(tag uint16) bool
	Handle(event Event)
}

// EventSink is the consumed contract for forwarding every received event
// to an external wire, e.g. a game-state machine's event bus (spec.md
// §4.9, "event_wire").
type EventSink interface {
	PushEvent(event Event)
}

// Update is a state delta ordered by TimeOrder and combinable with another
// Update into one covering both (spec.md §4.11, §6 "State store
// interface"). The generic merge semantics belong to the external
// game-state container and are out of scope for the core; the core only
// needs to fold cached updates together when composing a ServerPacket
// payload.
type Update interface {
	TimeOrder() uint16
	Merge(other Update) Update
	Bytes() []byte
}

// StateStore is the consumed contract for the pluggable server-side state
// repository (spec.md §4.11, §6 "State store interface").
type StateStore interface {
	CurrentStateUpdate() Update
	UpdateCache() []Update
}

const (
	// PacketTimeout is the age after which a pending ack is considered lost.
	PacketTimeout = 1 * time.Second
	// ConnectionTimeout is the inactivity period after which a connection
	// is declared Disconnected.
	ConnectionTimeout = 5 * time.Second
	// MaxEventsPerPacket caps how many queued events one outbound packet
	// drains per send-loop iteration.
	MaxEventsPerPacket = 5
	// MinThrottleTime and MaxThrottleTime bound the congestion controller's
	// adaptive dwell time.
	MinThrottleTime = 1 * time.Second
	MaxThrottleTime = 60 * time.Second
	// LatencyThreshold is the smoothed-RTT threshold that flips quality to bad.
	LatencyThreshold = 250 * time.Millisecond
	// GoodSendInterval and BadSendInterval are the two congestion regimes.
	GoodSendInterval = time.Second / 40
	BadSendInterval  = time.Second / 20
	// UpdateCacheSize bounds the server-side state-update cache (spec.md §6).
	UpdateCacheSize = 100
)

// Tunables overrides the package-level defaults above for one Server or
// ClientConnection, per spec.md §6's "Configurable constants" list. A zero
// field falls back to its package default; the zero Tunables{} is exactly
// today's fixed behavior.
type Tunables struct {
	PacketTimeout     time.Duration
	ConnectionTimeout time.Duration
	LatencyThreshold  time.Duration
}

func (t Tunables) withDefaults() Tunables {
	if t.PacketTimeout == 0 {
		t.PacketTimeout = PacketTimeout
	}
	if t.ConnectionTimeout == 0 {
		t.ConnectionTimeout = ConnectionTimeout
	}
	if t.LatencyThreshold == 0 {
		t.LatencyThreshold = LatencyThreshold
	}
	return t
}
