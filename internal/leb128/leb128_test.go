package leb128

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeInt32(t *testing.T) {
	for _, tc := range []struct {
		input    int32
		expected []byte
	}{
		{input: -165675008, expected: []byte{0x80, 0x80, 0x80, 0xb1, 0x7f}},
		{input: -624485, expected: []byte{0x9b, 0xf1, 0x59}},
		{input: -1, expected: []byte{0x7f}},
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: math.MaxInt32, expected: []byte{0xff, 0xff, 0xff, 0xff, 0x7}},
		{input: math.MinInt32, expected: []byte{0x80, 0x80, 0x80, 0x80, 0x78}},
	} {
		require.Equal(t, tc.expected, EncodeInt32(tc.input))
		decoded, n, err := DecodeInt32(bytes.NewReader(tc.expected))
		require.NoError(t, err)
		require.Equal(t, tc.input, decoded)
		require.Equal(t, uint64(len(tc.expected)), n)
	}
}

func TestEncodeDecodeInt64(t *testing.T) {
	for _, tc := range []struct {
		input    int64
		expected []byte
	}{
		{input: -math.MaxInt32, expected: []byte{0x81, 0x80, 0x80, 0x80, 0x78}},
		{input: -1, expected: []byte{0x7f}},
		{input: 0, expected: []byte{0x00}},
		{input: 4, expected: []byte{0x04}},
		{input: 16256, expected: []byte{0x80, 0xff, 0x0}},
		{input: math.MaxInt64, expected: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x0}},
		{input: math.MinInt64, expected: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}},
	} {
		require.Equal(t, tc.expected, EncodeInt64(tc.input))
		decoded, n, err := DecodeInt64(bytes.NewReader(tc.expected))
		require.NoError(t, err)
		require.Equal(t, tc.input, decoded)
		require.Equal(t, uint64(len(tc.expected)), n)
	}
}

func TestEncodeDecodeUint32(t *testing.T) {
	for _, tc := range []struct {
		input    uint32
		expected []byte
	}{
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 16256, expected: []byte{0x80, 0x7f}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: math.MaxUint32, expected: []byte{0xff, 0xff, 0xff, 0xff, 0xf}},
	} {
		require.Equal(t, tc.expected, EncodeUint32(tc.input))
		decoded, n, err := DecodeUint32(bytes.NewReader(tc.expected))
		require.NoError(t, err)
		require.Equal(t, tc.input, decoded)
		require.Equal(t, uint64(len(tc.expected)), n)
	}
}

func TestEncodeDecodeUint64(t *testing.T) {
	for _, tc := range []struct {
		input    uint64
		expected []byte
	}{
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: math.MaxUint64, expected: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x1}},
	} {
		require.Equal(t, tc.expected, EncodeUint64(tc.input))
		decoded, n, err := DecodeUint64(bytes.NewReader(tc.expected))
		require.NoError(t, err)
		require.Equal(t, tc.input, decoded)
		require.Equal(t, uint64(len(tc.expected)), n)
	}
}

func TestDecodeInt33AsInt64(t *testing.T) {
	for _, tc := range []struct {
		input    []byte
		expected int64
	}{
		{input: []byte{0x40}, expected: -64}, // the "no result" block signature
		{input: []byte{0x7f}, expected: -1},  // i32 as a block signature
		{input: []byte{0x7e}, expected: -2},
		{input: []byte{0x7d}, expected: -3},
		{input: []byte{0x7c}, expected: -4},
		{input: []byte{0x00}, expected: 0},
		{input: []byte{0x05}, expected: 5},
		{input: []byte{0xff, 0xff, 0xff, 0xff, 0xf}, expected: 1<<32 - 1},
	} {
		decoded, n, err := DecodeInt33AsInt64(bytes.NewReader(tc.input))
		require.NoError(t, err)
		require.Equal(t, tc.expected, decoded)
		require.Equal(t, uint64(len(tc.input)), n)
	}
}

func TestDecode_errors(t *testing.T) {
	t.Run("uint32 too long", func(t *testing.T) {
		_, _, err := DecodeUint32(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
		require.ErrorIs(t, err, ErrOverflow32)
	})
	t.Run("uint32 unused bits", func(t *testing.T) {
		_, _, err := DecodeUint32(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x10}))
		require.ErrorIs(t, err, ErrOverflow32)
	})
	t.Run("uint64 too long", func(t *testing.T) {
		in := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
		_, _, err := DecodeUint64(bytes.NewReader(in))
		require.ErrorIs(t, err, ErrOverflow64)
	})
	t.Run("uint64 unused bits", func(t *testing.T) {
		in := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x2}
		_, _, err := DecodeUint64(bytes.NewReader(in))
		require.ErrorIs(t, err, ErrOverflow64)
	})
	t.Run("int32 unused bits", func(t *testing.T) {
		_, _, err := DecodeInt32(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x4f}))
		require.ErrorIs(t, err, ErrOverflow32)
	})
	t.Run("int64 unused bits", func(t *testing.T) {
		in := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x41}
		_, _, err := DecodeInt64(bytes.NewReader(in))
		require.ErrorIs(t, err, ErrOverflow64)
	})
	t.Run("int33 too long", func(t *testing.T) {
		_, _, err := DecodeInt33AsInt64(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
		require.ErrorIs(t, err, ErrOverflow33)
	})
	t.Run("truncated input", func(t *testing.T) {
		_, _, err := DecodeUint32(bytes.NewReader([]byte{0x80}))
		require.Error(t, err)
	})
}
