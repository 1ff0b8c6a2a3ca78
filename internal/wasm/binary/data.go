package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeDataSegment returns the wasm.DataSegment decoded with the
// WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-data
func decodeDataSegment(r *binreader.Reader) (*wasm.DataSegment, error) {
	mi, err := r.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "memory index")
	}

	expr, err := decodeConstantExpression(r)
	if err != nil {
		return nil, errors.WithMessage(err, "offset expression")
	}

	init, err := r.ReadByteVector()
	if err != nil {
		return nil, errors.WithMessage(err, "init bytes")
	}
	// The byte vector aliases the input buffer: copy so the segment owns it.
	owned := make([]byte, len(init))
	copy(owned, init)

	return &wasm.DataSegment{MemoryIndex: mi, OffsetExpr: expr, Init: owned}, nil
}
