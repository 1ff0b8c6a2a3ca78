package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

func decodeValueTypes(r *binreader.Reader, num uint32) ([]wasm.ValueType, error) {
	// Each value type is one byte, so a count past the remaining bytes can
	// only be malformed; checking first keeps the allocation honest.
	if uint64(num) > uint64(r.Len()) {
		return nil, errcode.WithOffset(errcode.ErrUnexpectedEnd, r.Tell())
	}
	ret := make([]wasm.ValueType, 0, num)
	for i := uint32(0); i < num; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
			ret = append(ret, b)
		default:
			return nil, errors.Wrapf(errcode.ErrMalformedBinary, "invalid value type %#x", b)
		}
	}
	return ret, nil
}

// decodeLimits returns the (min, optional max) pair, guarded by the flag
// byte that decides whether a max follows.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-limits
func decodeLimits(r *binreader.Reader) (min uint32, max *uint32, err error) {
	flag, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	switch flag {
	case 0x00:
		min, err = r.ReadU32()
	case 0x01:
		if min, err = r.ReadU32(); err != nil {
			return
		}
		var m uint32
		if m, err = r.ReadU32(); err == nil {
			max = &m
		}
	default:
		err = errors.Wrapf(errcode.ErrMalformedBinary, "invalid limits flag %#x", flag)
	}
	return
}
