// Package leb128 implements the variable-length LEB128 integer encoding used
// throughout the WebAssembly 1.0 (20191205) binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-int
package leb128

import (
	"errors"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen33 = 5
	maxVarintLen64 = 10
)

var (
	// ErrOverflow32 is returned when a LEB128 encoding exceeds the 5-byte
	// bound of a 32-bit integer.
	ErrOverflow32 = errors.New("overflows a 32-bit integer")
	// ErrOverflow33 is returned when a LEB128 encoding exceeds the bound of
	// a 33-bit integer, used for block signatures.
	ErrOverflow33 = errors.New("overflows a 33-bit integer")
	// ErrOverflow64 is returned when a LEB128 encoding exceeds the 10-byte
	// bound of a 64-bit integer.
	ErrOverflow64 = errors.New("overflows a 64-bit integer")
)

// EncodeInt32 encodes the signed value into a buffer in LEB128 format.
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt32(value int32) []byte {
	return EncodeInt64(int64(value))
}

// EncodeInt64 encodes the signed value into a buffer in LEB128 format.
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt64(value int64) (buf []byte) {
	for {
		// Take the 7 low-order bits, remembering the bit that decides
		// whether sign extension would reproduce the remainder.
		b := uint8(value & 0x7f)
		signb := b & 0x40

		value >>= 7

		if (value != -1 || signb == 0) && (value != 0 || signb != 0) {
			// The remainder is not implied by sign extension: continue.
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			return buf
		}
	}
}

// EncodeUint32 encodes the value into a buffer in LEB128 format.
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint32(value uint32) []byte {
	return EncodeUint64(uint64(value))
}

// EncodeUint64 encodes the value into a buffer in LEB128 format.
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint64(value uint64) (buf []byte) {
	for {
		b := uint8(value & 0x7f)
		value >>= 7

		if value != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			return buf
		}
	}
}

// DecodeUint32 decodes an unsigned 32-bit integer, returning it with the
// number of bytes consumed. An encoding longer than 5 bytes, or whose final
// byte carries bits beyond the 32nd, fails with ErrOverflow32.
func DecodeUint32(r io.ByteReader) (ret uint32, bytesRead uint64, err error) {
	var shift uint32
	for i := 0; i < maxVarintLen32; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		if b < 0x80 {
			// The 5th byte has room for bits 28..34: only the low 4 may be set.
			if i == maxVarintLen32-1 && b&0xf0 != 0 {
				return 0, 0, ErrOverflow32
			}
			return ret | uint32(b)<<shift, uint64(i) + 1, nil
		}
		ret |= (uint32(b) & 0x7f) << shift
		shift += 7
	}
	return 0, 0, ErrOverflow32
}

// DecodeUint64 decodes an unsigned 64-bit integer, returning it with the
// number of bytes consumed. An encoding longer than 10 bytes, or whose final
// byte carries bits beyond the 64th, fails with ErrOverflow64.
func DecodeUint64(r io.ByteReader) (ret uint64, bytesRead uint64, err error) {
	var shift uint64
	for i := 0; i < maxVarintLen64; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		if b < 0x80 {
			// The 10th byte has room for bits 63..69: only the low bit may be set.
			if i == maxVarintLen64-1 && b > 1 {
				return 0, 0, ErrOverflow64
			}
			return ret | uint64(b)<<shift, uint64(i) + 1, nil
		}
		ret |= (uint64(b) & 0x7f) << shift
		shift += 7
	}
	return 0, 0, ErrOverflow64
}

// DecodeInt32 decodes a signed 32-bit integer, sign-extended, returning it
// with the number of bytes consumed.
func DecodeInt32(r io.ByteReader) (ret int32, bytesRead uint64, err error) {
	var shift int
	var b byte
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		ret |= (int32(b) & 0x7f) << shift
		shift += 7
		bytesRead++
		if b&0x80 == 0 {
			break
		}
		if bytesRead == maxVarintLen32 {
			return 0, 0, ErrOverflow32
		}
	}
	if shift < 32 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	// The final (5th) byte holds bits 28..34; bits past the sign bit 31 must
	// all equal it, so only 0b0000xxx or 0b1111xxx low-nibble-extensions fit.
	if bytesRead == maxVarintLen32 {
		if ext := b & 0x78; ext != 0 && ext != 0x78 {
			return 0, 0, ErrOverflow32
		}
	}
	return
}

// DecodeInt33AsInt64 decodes a signed 33-bit integer as an int64. This is
// the encoding of a block signature: a single-byte value type, 0x40 meaning
// no result, or a non-negative type-section index.
func DecodeInt33AsInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	var shift int
	var b byte
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		ret |= (int64(b) & 0x7f) << shift
		shift += 7
		bytesRead++
		if b&0x80 == 0 {
			break
		}
		if bytesRead == maxVarintLen33 {
			return 0, 0, ErrOverflow33
		}
	}
	if shift < 64 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	if ret < -(1<<32) || ret >= 1<<32 {
		return 0, 0, ErrOverflow33
	}
	return
}

// DecodeInt64 decodes a signed 64-bit integer, sign-extended, returning it
// with the number of bytes consumed.
func DecodeInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	var shift int
	var b byte
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		ret |= (int64(b) & 0x7f) << shift
		shift += 7
		bytesRead++
		if b&0x80 == 0 {
			break
		}
		if bytesRead == maxVarintLen64 {
			return 0, 0, ErrOverflow64
		}
	}
	if shift < 64 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	// The final (10th) byte holds bits 63..69; past the sign bit 63 only
	// full sign extension fits, so it must be 0x00 or 0x7f.
	if bytesRead == maxVarintLen64 && b != 0x00 && b != 0x7f {
		return 0, 0, ErrOverflow64
	}
	return
}
