package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeExport returns the wasm.Export decoded with the WebAssembly 1.0
// (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-export
func decodeExport(r *binreader.Reader) (i *wasm.Export, err error) {
	i = &wasm.Export{}
	if i.Name, err = r.ReadName(); err != nil {
		return nil, errors.WithMessage(err, "export name")
	}

	b, err := r.ReadByte()
	if err != nil {
		return nil, errors.WithMessage(err, "export kind")
	}

	i.Type = b
	switch i.Type {
	case wasm.ExternTypeFunc, wasm.ExternTypeTable, wasm.ExternTypeMemory, wasm.ExternTypeGlobal:
		if i.Index, err = r.ReadU32(); err != nil {
			return nil, errors.WithMessage(err, "export index")
		}
	default:
		return nil, errors.Wrapf(errcode.ErrMalformedBinary, "invalid byte for exportdesc: %#x", b)
	}
	return
}
