package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

func decodeFunctionType(r *binreader.Reader) (*wasm.FunctionType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b != 0x60 {
		return nil, errors.Wrapf(errcode.ErrMalformedBinary, "invalid functype leading byte %#x != 0x60", b)
	}

	paramCount, err := r.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "could not read parameter count")
	}
	paramTypes, err := decodeValueTypes(r, paramCount)
	if err != nil {
		return nil, errors.WithMessage(err, "could not read parameter types")
	}

	resultCount, err := r.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "could not read result count")
	}
	// WebAssembly 1.0 (20191205) allows at most one result.
	if resultCount > 1 {
		return nil, errors.Wrapf(errcode.ErrMalformedBinary, "multi-value result count %d", resultCount)
	}
	resultTypes, err := decodeValueTypes(r, resultCount)
	if err != nil {
		return nil, errors.WithMessage(err, "could not read result types")
	}

	return &wasm.FunctionType{Params: paramTypes, Results: resultTypes}, nil
}
