package wire

import "encoding/binary"

// ClientPacket is a Packet sent by a client: header, then a 2-byte
// time_order sequence giving the client's latest known state ordering,
// then the event block.
type ClientPacket struct {
	Header    Header
	TimeOrder uint16
	events    [][]byte

	datagram []byte
}

// NewClientPacket creates an empty ClientPacket.
func NewClientPacket(h Header, timeOrder uint16) *ClientPacket {
	return &ClientPacket{Header: h, TimeOrder: timeOrder}
}

// Events returns a copy of the events attached to the packet.
func (p *ClientPacket) Events() [][]byte {
	out := make([][]byte, len(p.events))
	copy(out, p.events)
	return out
}

// AddEvent attaches an event, see Packet.AddEvent for caching semantics.
func (p *ClientPacket) AddEvent(event []byte) error {
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
func (p *ClientPacket) Encode() ([]byte, error) {
	if p.datagram != nil {
		return p.datagram, nil
	}
	buf := p.Header.Bytes()
	var to [2]byte
	binary.BigEndian.PutUint16(to[:], p.TimeOrder)
	buf = append(buf, to[0], to[1])
	for _, e := range p.events {
		buf = appendEventBlock(buf, e)
	}
	if len(buf) > MaxDatagramSize {
		return nil, ErrOverflow
	}
	p.datagram = buf
	return p.datagram, nil
}

// DecodeClientPacket parses a ClientPacket from a datagram.
func DecodeClientPacket(datagram []byte) (*ClientPacket, error) {
	h, rest, err := DecodeHeader(datagram)
	if err != nil {
		return nil, err
	}
	if len(rest) < 2 {
		return nil, ErrMalformedEventBlock
	}
	timeOrder := binary.BigEndian.Uint16(rest[:2])
	events, err := decodeEventBlock(rest[2:])
	if err != nil {
		return nil, err
	}
	return &ClientPacket{Header: h, TimeOrder: timeOrder, events: events, datagram: datagram}, nil
}
