package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeImport returns the wasm.Import decoded with the WebAssembly 1.0
// (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-import
func decodeImport(r *binreader.Reader) (i *wasm.Import, err error) {
	i = &wasm.Import{}
	if i.Module, err = r.ReadName(); err != nil {
		return nil, errors.WithMessage(err, "import module")
	}
	if i.Name, err = r.ReadName(); err != nil {
		return nil, errors.WithMessage(err, "import name")
	}

	b, err := r.ReadByte()
	if err != nil {
		return nil, errors.WithMessage(err, "import kind")
	}

	i.Type = b
	switch i.Type {
	case wasm.ExternTypeFunc:
		if i.DescFunc, err = r.ReadU32(); err != nil {
			return nil, errors.WithMessage(err, "import func typeindex")
		}
	case wasm.ExternTypeTable:
		if i.DescTable, err = decodeTable(r); err != nil {
			return nil, errors.WithMessage(err, "import table desc")
		}
	case wasm.ExternTypeMemory:
		if i.DescMem, err = decodeMemory(r); err != nil {
			return nil, errors.WithMessage(err, "import mem desc")
		}
	case wasm.ExternTypeGlobal:
		if i.DescGlobal, err = decodeGlobalType(r); err != nil {
			return nil, errors.WithMessage(err, "import global desc")
		}
	default:
		return nil, errors.Wrapf(errcode.ErrMalformedBinary, "invalid byte for importdesc: %#x", b)
	}
	return
}
