package demogame

import (
	"encoding/binary"
	"math"

	"pulsenet/pkg/netcore"
)

// Event type tags for the demo protocol, the generalized equivalent of the
// teacher's EventType enum (core/events/events.go) trimmed to the handful
// of events a minimal game needs.
const (
	// EventTypeChat and EventTypeMove are carried as the Type field of a
	// netcore.Event; kept as their own constants since netcore.Event is a
	// struct, not a type pulsenet can use directly as a tag value.
	EventTypeChat uint16 = iota + 1
	EventTypeMove
)

// Handler dispatches demo events, implementing netcore.EventHandler. It
// generalizes the teacher's EventManager (a per-type callback registry)
// down to the two event types this example needs, calling a plain func
// per type the way EventManager.Trigger walks its handlers slice.
type Handler struct {
	OnChat func(playerID uint16, message string)
	OnMove func(playerID uint16, pos Vector3)
}

func (h *Handler) HasEventType(tag uint16) bool {
	switch tag {
	case EventTypeChat, EventTypeMove:
		return true
	default:
		return false
	}
}

func (h *Handler) Handle(event netcore.Event) {
	switch event.Type {
	case EventTypeChat:
		if h.OnChat != nil && len(event.Payload) >= 2 {
			playerID := uint16(event.Payload[0])<<8 | uint16(event.Payload[1])
			h.OnChat(playerID, string(event.Payload[2:]))
		}
	case EventTypeMove:
		if h.OnMove != nil && len(event.Payload) >= 14 {
			playerID := uint16(event.Payload[0])<<8 | uint16(event.Payload[1])
			pos := decodeVector3(event.Payload[2:14])
			h.OnMove(playerID, pos)
		}
	}
}

// EncodeChatEvent builds the chat event a client dispatches to say message.
func EncodeChatEvent(playerID uint16, message string) netcore.Event {
	payload := make([]byte, 2+len(message))
	binary.BigEndian.PutUint16(payload[:2], playerID)
	copy(payload[2:], message)
	return netcore.Event{Type: EventTypeChat, Payload: payload}
}

// EncodeMoveEvent builds the move event a client dispatches to report pos.
func EncodeMoveEvent(playerID uint16, pos Vector3) netcore.Event {
	payload := make([]byte, 2+12)
	binary.BigEndian.PutUint16(payload[:2], playerID)
	encodeVector3(payload[2:14], pos)
	return netcore.Event{Type: EventTypeMove, Payload: payload}
}

func encodeVector3(buf []byte, v Vector3) {
	binary.BigEndian.PutUint32(buf[0:4], math.Float32bits(v.X))
	binary.BigEndian.PutUint32(buf[4:8], math.Float32bits(v.Y))
	binary.BigEndian.PutUint32(buf[8:12], math.Float32bits(v.Z))
}

func decodeVector3(buf []byte) Vector3 {
	return Vector3{
		X: math.Float32frombits(binary.BigEndian.Uint32(buf[0:4])),
		Y: math.Float32frombits(binary.BigEndian.Uint32(buf[4:8])),
		Z: math.Float32frombits(binary.BigEndian.Uint32(buf[8:12])),
	}
}
