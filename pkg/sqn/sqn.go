// Package sqn implements the 16-bit modular sequence number used by pulsenet's
// wire protocol. Zero is reserved to mean "no sequence yet"; incrementing
// 65535 wraps to 1, never back to 0.
package sqn

import "encoding/binary"

// SQN is a 16-bit modular sequence number. The zero value means "none".
type SQN uint16

// None is the reserved "no sequence yet" value.
const None SQN = 0

// Next returns s incremented by one, wrapping 65535 to 1.
func (s SQN) Next() SQN {
	if s == 65535 {
		return 1
	}
	return s + 1
}

// Sub returns the signed modular distance a-b: the value d in (-32767, 32767]
// such that d > 0 means a is "after" b by d steps, d < 0 means a is "before"
// b by |d| steps, and d == 0 means equality. Both a and b are expected in
// 1..65535 (None has no defined ordering against a real sequence).
func (a SQN) Sub(b SQN) int32 {
	d := int32(a) - int32(b)
	switch {
	case d < -32767:
		d += 65535
	case d > 32767:
		d -= 65535
	}
	return d
}

// Bytes returns s as 2 big-endian bytes.
func (s SQN) Bytes() [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(s))
	return b
}

// AppendBytes appends the 2 big-endian bytes of s to buf.
func (s SQN) AppendBytes(buf []byte) []byte {
	b := s.Bytes()
	return append(buf, b[0], b[1])
}

// FromBytes reads a SQN from the first 2 bytes of buf.
func FromBytes(buf []byte) SQN {
	return SQN(binary.BigEndian.Uint16(buf))
}
