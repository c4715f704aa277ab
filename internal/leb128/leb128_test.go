package leb128

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/warpwasm/api"
)

func TestDecodeUint32(t *testing.T) {
	for _, tc := range []struct {
		buf  []byte
		want uint32
		n    int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x7F}, 127, 1},
		{[]byte{0xE5, 0x8E, 0x26}, 624485, 3},
	} {
		v, n, trap := DecodeUint32(tc.buf, 0)
		require.Equal(t, api.TrapNone, trap)
		assert.Equal(t, tc.want, v)
		assert.Equal(t, tc.n, n)
	}
}

func TestDecodeUint32OverflowsPastFiveBytes(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}
	_, _, trap := DecodeUint32(buf, 0)
	assert.Equal(t, api.TrapReadOverflow, trap)
}

func TestDecodeUint32TruncatedInput(t *testing.T) {
	_, _, trap := DecodeUint32([]byte{0x80}, 0)
	assert.Equal(t, api.TrapReadOverflow, trap)
}

func TestDecodeInt32SignExtends(t *testing.T) {
	// -1 encodes as 0x7F (single byte, sign bit of the 7-bit payload set).
	v, n, trap := DecodeInt32([]byte{0x7F}, 0)
	require.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int32(-1), v)
	assert.Equal(t, 1, n)
}

func TestDecodeInt32Positive(t *testing.T) {
	v, _, trap := DecodeInt32([]byte{0x00}, 0)
	require.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int32(0), v)
}

func TestDecodeInt64SignExtends(t *testing.T) {
	v, _, trap := DecodeInt64([]byte{0x7F}, 0)
	require.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int64(-1), v)
}

// DecodeInt7 must round-trip every wire byte this package's value-type and
// block-signature tags use: byte(DecodeInt7(b)) == b for each of them.
func TestDecodeInt7RoundTripsValueTypeTags(t *testing.T) {
	for _, b := range []byte{0x7F, 0x7E, 0x7D, 0x7C, 0x70, 0x60, 0x40, 0x00} {
		v, n, trap := DecodeInt7([]byte{b}, 0)
		require.Equal(t, api.TrapNone, trap)
		assert.Equal(t, 1, n)
		assert.Equal(t, b, byte(v), "round trip for wire byte 0x%02X", b)
	}
}

func TestDecodeInt7TruncatedInput(t *testing.T) {
	_, _, trap := DecodeInt7(nil, 0)
	assert.Equal(t, api.TrapReadOverflow, trap)
}
