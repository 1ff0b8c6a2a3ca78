package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeElementSegment returns the wasm.ElementSegment decoded with the
// WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-elem
func decodeElementSegment(r *binreader.Reader) (*wasm.ElementSegment, error) {
	ti, err := r.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "table index")
	}

	expr, err := decodeConstantExpression(r)
	if err != nil {
		return nil, errors.WithMessage(err, "offset expression")
	}

	vs, err := r.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "element vector size")
	}
	// Each function index is at least one byte.
	if uint64(vs) > uint64(r.Len()) {
		return nil, errors.WithMessage(errcode.ErrUnexpectedEnd, "element vector size")
	}
	init := make([]wasm.Index, vs)
	for i := range init {
		if init[i], err = r.ReadU32(); err != nil {
			return nil, errors.WithMessage(err, "element function index")
		}
	}
	return &wasm.ElementSegment{TableIndex: ti, OffsetExpr: expr, Init: init}, nil
}
