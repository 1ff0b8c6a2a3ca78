// Package ieee754 decodes little-endian IEEE-754 floats from the binary
// format. Bit patterns are preserved verbatim: NaN and infinity payloads
// survive decoding unchanged.
package ieee754

import (
	"encoding/binary"
	"io"
	"math"
)

// DecodeFloat32 decodes a 32-bit float from its 4-byte little-endian form.
func DecodeFloat32(r io.Reader) (float32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	raw := binary.LittleEndian.Uint32(buf)
	return math.Float32frombits(raw), nil
}

// DecodeFloat64 decodes a 64-bit float from its 8-byte little-endian form.
func DecodeFloat64(r io.Reader) (float64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	raw := binary.LittleEndian.Uint64(buf)
	return math.Float64frombits(raw), nil
}

// EncodeFloat32 encodes the float in its 4-byte little-endian form.
func EncodeFloat32(f float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
	return buf
}

// EncodeFloat64 encodes the float in its 8-byte little-endian form.
func EncodeFloat64(f float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}
