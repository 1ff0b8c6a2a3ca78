package ieee754

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFloat32(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    []byte
		expected uint32
	}{
		{name: "one", input: []byte{0x00, 0x00, 0x80, 0x3f}, expected: math.Float32bits(1.0)},
		{name: "negative zero", input: []byte{0x00, 0x00, 0x00, 0x80}, expected: 0x80000000},
		{name: "+inf", input: []byte{0x00, 0x00, 0x80, 0x7f}, expected: 0x7f800000},
		// A NaN with a non-canonical payload must survive bit-for-bit.
		{name: "nan payload", input: []byte{0x01, 0x00, 0x80, 0x7f}, expected: 0x7f800001},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, err := DecodeFloat32(bytes.NewReader(tc.input))
			require.NoError(t, err)
			require.Equal(t, tc.expected, math.Float32bits(f))
			require.Equal(t, tc.input, EncodeFloat32(f))
		})
	}
}

func TestDecodeFloat64(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    []byte
		expected uint64
	}{
		{name: "one", input: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f}, expected: math.Float64bits(1.0)},
		{name: "-inf", input: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0xff}, expected: 0xfff0000000000000},
		{name: "nan payload", input: []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x7f}, expected: 0x7ff0000000000002},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, err := DecodeFloat64(bytes.NewReader(tc.input))
			require.NoError(t, err)
			require.Equal(t, tc.expected, math.Float64bits(f))
			require.Equal(t, tc.input, EncodeFloat64(f))
		})
	}
}

func TestDecode_truncated(t *testing.T) {
	_, err := DecodeFloat32(bytes.NewReader([]byte{0x00, 0x00}))
	require.Error(t, err)
	_, err = DecodeFloat64(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x00}))
	require.Error(t, err)
}
