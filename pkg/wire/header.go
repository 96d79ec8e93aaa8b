// Package wire implements pulsenet's datagram framing: the 12-byte header
// (protocol tag, sequence, ack, ack bitfield) and the Client/Server packet
// variants layered on top of it. Grounded on the teacher's BitStream/
// DataPacket codec (source/protocol/raknet.go) and on the exact field
// layout of pygase's Header/Package (original_source/pygase/connection.py).
package wire

import "encoding/binary"

// ProtocolTag is the 4-byte identifier every pulsenet datagram starts with.
var ProtocolTag = [4]byte{0xFF, 0xD0, 0xFA, 0xB9}

// HeaderSize is the fixed size in bytes of an encoded Header.
const HeaderSize = 4 + 2 + 2 + 4

// MaxDatagramSize is the maximum serialized size of a Packet, including the
// header, in bytes.
const MaxDatagramSize = 2048

// Header is the fixed-size prefix of every pulsenet datagram.
type Header struct {
	Sequence    uint16 // sender's outgoing sequence
	Ack         uint16 // most recent sequence received from the peer, or 0
	// AckBitfield uses Connection's internal bit-i-from-the-LSB convention:
	// bit i set means sequence Ack-(i+1) was received. Bytes/DecodeHeader
	// translate this to and from the wire's bit-i-from-the-MSB convention
	// (spec.md §4.1) via reverseBitfield.
	AckBitfield uint32
}

// Bytes encodes h as the 12-byte wire header.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], ProtocolTag[:])
	binary.BigEndian.PutUint16(buf[4:6], h.Sequence)
	binary.BigEndian.PutUint16(buf[6:8], h.Ack)
	binary.BigEndian.PutUint32(buf[8:12], reverseBitfield(h.AckBitfield))
	return buf
}

// reverseBitfield reverses the bit order of a 32-bit ack bitfield between
// AckBitfield's internal convention (bit i, counted from the LSB, set means
// sequence Ack-(i+1) was received — the natural orientation for the shifts
// in Connection.updateRemoteInfo) and the wire convention of spec.md §4.1:
// bitfield index 0 is the word's most-significant bit. Self-inverse, so the
// same function serves both Bytes and DecodeHeader.
func reverseBitfield(x uint32) uint32 {
	var r uint32
	for i := 0; i < 32; i++ {
		r = (r << 1) | (x & 1)
		x >>= 1
	}
	return r
}

// DecodeHeader parses a Header from the front of buf, returning the header
// and the remaining bytes after it.
func DecodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < 4 || [4]byte(buf[:4]) != ProtocolTag {
		if len(buf) < 4 {
			return Header{}, nil, ErrMalformedHeader
		}
		return Header{}, nil, ErrProtocolMismatch
	}
	if len(buf) < HeaderSize {
		return Header{}, nil, ErrMalformedHeader
	}
	h := Header{
		Sequence:    binary.BigEndian.Uint16(buf[4:6]),
		Ack:         binary.BigEndian.Uint16(buf[6:8]),
		AckBitfield: reverseBitfield(binary.BigEndian.Uint32(buf[8:12])),
	}
	return h, buf[HeaderSize:], nil
}
