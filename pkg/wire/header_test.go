package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Sequence: 42, Ack: 7, AckBitfield: 0xDEADBEEF}
	decoded, rest, err := DecodeHeader(h.Bytes())
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
	assert.Empty(t, rest)
}

func TestHeaderBytesPlacesBitfieldIndexZeroAtMSB(t *testing.T) {
	// spec.md §4.1: bitfield index 0 (internally, bit 0 from the LSB, i.e.
	// sequence Ack-1) must land on the most-significant bit of the wire
	// word.
	h := Header{Sequence: 1, Ack: 1, AckBitfield: 1}
	buf := h.Bytes()
	assert.Equal(t, byte(0x80), buf[8], "wire bitfield byte should have its MSB set")
}

func TestHeaderTagGuard(t *testing.T) {
	buf := append([]byte{0x00, 0x00, 0x00, 0x00}, make([]byte, 8)...)
	_, _, err := DecodeHeader(buf)
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestHeaderMalformed(t *testing.T) {
	buf := append(append([]byte{}, ProtocolTag[:]...), 0x00, 0x01)
	_, _, err := DecodeHeader(buf)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestHeaderTooShortToCheckTag(t *testing.T) {
	_, _, err := DecodeHeader([]byte{0xFF, 0xD0})
	assert.ErrorIs(t, err, ErrMalformedHeader)
}
