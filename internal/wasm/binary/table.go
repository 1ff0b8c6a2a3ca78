package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeTable returns the wasm.Table decoded with the WebAssembly 1.0
// (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-table
func decodeTable(r *binreader.Reader) (*wasm.Table, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b != wasm.ElemTypeFuncref {
		return nil, errors.Wrapf(errcode.ErrMalformedBinary,
			"invalid element type %#x != funcref(%#x)", b, wasm.ElemTypeFuncref)
	}

	min, max, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	if max != nil && *max < min {
		return nil, errors.Wrap(errcode.ErrMalformedBinary, "table size minimum must not be greater than maximum")
	}
	return &wasm.Table{ElemType: b, Limit: &wasm.Limits{Min: min, Max: max}}, nil
}
