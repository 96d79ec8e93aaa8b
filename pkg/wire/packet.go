package wire

import "encoding/binary"

// Packet is the base datagram: a Header plus an ordered list of opaque
// events. Encoding is memoized — once a packet has been serialized (via
// Encode or by being decoded), AddEvent appends incrementally to the cached
// datagram instead of re-encoding from scratch, and fails with ErrOverflow
// if the new total would exceed MaxDatagramSize. Before any caching has
// happened, AddEvent always succeeds (the size is checked at Encode time).
type Packet struct {
	Header Header
	events [][]byte

	datagram []byte // cached encoding, nil until first Encode/decode
}

// NewPacket creates an empty Packet with the given header.
func NewPacket(h Header) *Packet {
	return &Packet{Header: h}
}

// Events returns a copy of the events attached to the packet.
func (p *Packet) Events() [][]byte {
	out := make([][]byte, len(p.events))
	copy(out, p.events)
	return out
}

// AddEvent attaches an event payload to the packet. If the packet has
// already been encoded, the event is appended to the cached datagram in
// place; ErrOverflow is returned (and the packet left in its prior, usable
// state) if that would exceed MaxDatagramSize.
func (p *Packet) AddEvent(event []byte) error {
	if p.datagram != nil {
		if len(p.datagram)+len(event)+2 > MaxDatagramSize {
			return ErrOverflow
		}
		p.datagram = appendEventBlock(p.datagram, event)
	}
	p.events = append(p.events, event)
	return nil
}

// Encode serializes the packet to a datagram, computing and caching it on
// first call. Returns ErrOverflow if the result exceeds MaxDatagramSize.
func (p *Packet) Encode() ([]byte, error) {
	if p.datagram != nil {
		return p.datagram, nil
	}
	buf := p.Header.Bytes()
	buf = p.appendEventBlock(buf)
	if len(buf) > MaxDatagramSize {
		return nil, ErrOverflow
	}
	p.datagram = buf
	return p.datagram, nil
}

func (p *Packet) appendEventBlock(buf []byte) []byte {
	for _, e := range p.events {
		buf = appendEventBlock(buf, e)
	}
	return buf
}

func appendEventBlock(buf, event []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(event)))
	buf = append(buf, lenBuf[0], lenBuf[1])
	buf = append(buf, event...)
	return buf
}

// DecodePacket parses a Packet from a datagram previously produced by
// Encode. The raw datagram is retained as the packet's cache so subsequent
// AddEvent calls append incrementally.
func DecodePacket(datagram []byte) (*Packet, error) {
	h, rest, err := DecodeHeader(datagram)
	if err != nil {
		return nil, err
	}
	events, err := decodeEventBlock(rest)
	if err != nil {
		return nil, err
	}
	p := &Packet{Header: h, events: events, datagram: datagram}
	return p, nil
}

// decodeEventBlock repeatedly reads a 2-byte length then that many bytes,
// stopping when the buffer is exhausted. A short read is MalformedEventBlock.
func decodeEventBlock(buf []byte) ([][]byte, error) {
	var events [][]byte
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, ErrMalformedEventBlock
		}
		n := int(binary.BigEndian.Uint16(buf[:2]))
		buf = buf[2:]
		if len(buf) < n {
			return nil, ErrMalformedEventBlock
		}
		events = append(events, buf[:n])
		buf = buf[n:]
	}
	return events, nil
}
