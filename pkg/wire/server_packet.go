package wire

import "encoding/binary"

// ServerPacket is a Packet sent by a server: header, then a length-prefixed
// opaque state-update payload, then the event block.
type ServerPacket struct {
	Header      Header
	StateUpdate []byte
	events      [][]byte

	datagram []byte
}

// NewServerPacket creates an empty ServerPacket.
func NewServerPacket(h Header, stateUpdate []byte) *ServerPacket {
	return &ServerPacket{Header: h, StateUpdate: stateUpdate}
}

// Events returns a copy of the events attached to the packet.
func (p *ServerPacket) Events() [][]byte {
	out := make([][]byte, len(p.events))
	copy(out, p.events)
	return out
}

// AddEvent attaches an event, see Packet.AddEvent for caching semantics.
func (p *ServerPacket) AddEvent(event []byte) error {
	if p.datagram != nil {
		if len(p.datagram)+len(event)+2 > MaxDatagramSize {
			return ErrOverflow
		}
		p.datagram = appendEventBlock(p.datagram, event)
	}
	p.events = append(p.events, event)
	return nil
}

// Encode serializes the packet, computing and caching it on first call.
func (p *ServerPacket) Encode() ([]byte, error) {
	if p.datagram != nil {
		return p.datagram, nil
	}
	buf := p.Header.Bytes()
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(p.StateUpdate)))
	buf = append(buf, lenBuf[0], lenBuf[1])
	buf = append(buf, p.StateUpdate...)
	for _, e := range p.events {
		buf = appendEventBlock(buf, e)
	}
	if len(buf) > MaxDatagramSize {
		return nil, ErrOverflow
	}
	p.datagram = buf
	return p.datagram, nil
}

// DecodeServerPacket parses a ServerPacket from a datagram.
func DecodeServerPacket(datagram []byte) (*ServerPacket, error) {
	h, rest, err := DecodeHeader(datagram)
	if err != nil {
		return nil, err
	}
	if len(rest) < 2 {
		return nil, ErrMalformedEventBlock
	}
	n := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) < n {
		return nil, ErrMalformedEventBlock
	}
	stateUpdate := rest[:n]
	events, err := decodeEventBlock(rest[n:])
	if err != nil {
		return nil, err
	}
	return &ServerPacket{Header: h, StateUpdate: stateUpdate, events: events, datagram: datagram}, nil
}
