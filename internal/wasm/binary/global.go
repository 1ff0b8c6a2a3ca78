package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeGlobalType returns the wasm.GlobalType decoded with the WebAssembly
// 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-globaltype
func decodeGlobalType(r *binreader.Reader) (*wasm.GlobalType, error) {
	vts, err := decodeValueTypes(r, 1)
	if err != nil {
		return nil, err
	}

	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var mutable bool
	switch b {
	case 0x00:
	case 0x01:
		mutable = true
	default:
		return nil, errors.Wrapf(errcode.ErrMalformedBinary, "invalid mutability flag %#x", b)
	}
	return &wasm.GlobalType{ValType: vts[0], Mutable: mutable}, nil
}

func decodeGlobal(r *binreader.Reader) (*wasm.Global, error) {
	gt, err := decodeGlobalType(r)
	if err != nil {
		return nil, err
	}

	init, err := decodeConstantExpression(r)
	if err != nil {
		return nil, err
	}
	return &wasm.Global{Type: gt, Init: init}, nil
}
