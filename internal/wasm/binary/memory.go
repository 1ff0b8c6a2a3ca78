package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeMemory returns the wasm.Memory decoded with the WebAssembly 1.0
// (20191205) Binary Format. A memory without an encoded max is capped at
// wasm.MemoryMaxPages so growth stays bounded either way.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-memory
func decodeMemory(r *binreader.Reader) (*wasm.Memory, error) {
	min, maxP, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}

	max := wasm.MemoryMaxPages
	if maxP != nil {
		max = *maxP
	}
	if max > wasm.MemoryMaxPages {
		return nil, errors.Wrapf(errcode.ErrMalformedBinary,
			"max %d pages outside range of %d pages", max, wasm.MemoryMaxPages)
	} else if min > wasm.MemoryMaxPages {
		return nil, errors.Wrapf(errcode.ErrMalformedBinary,
			"min %d pages outside range of %d pages", min, wasm.MemoryMaxPages)
	} else if min > max {
		return nil, errors.Wrapf(errcode.ErrMalformedBinary, "min %d pages > max %d pages", min, max)
	}
	return &wasm.Memory{Min: min, Max: max, IsMaxEncoded: maxP != nil}, nil
}
