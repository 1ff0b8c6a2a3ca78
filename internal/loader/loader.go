// Package loader is the input front door: it reads wasm binaries from files
// or memory and resolves ahead-of-time compiled shared objects down to the
// wasm bytes they embed, which then go through the one decode path.
package loader

import (
	"strings"

	"go.uber.org/zap"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/log"
	"github.com/zenovm/zeno/internal/version"
	"github.com/zenovm/zeno/internal/wasm"
	"github.com/zenovm/zeno/internal/wasm/binary"
)

// Loader parses modules from paths or byte slices. The zero value uses the
// ELF-backed LoadManager for shared objects.
type Loader struct {
	// LMgr resolves compiled shared objects; defaults to ELFLoadManager.
	LMgr LoadManager
}

// New returns a Loader with the default LoadManager.
func New() *Loader {
	return &Loader{LMgr: &ELFLoadManager{}}
}

// LoadFile reads the whole file, discriminating open failures, short reads
// and other read errors into the loader's error kinds.
func (l *Loader) LoadFile(path string) ([]byte, error) {
	r, err := binreader.NewFileReader(path)
	if err != nil {
		log.Logger().Error("load file failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return r.ReadBytes(uint32(r.Len()))
}

// ParseModule loads and decodes the module at path. A ".so" suffix selects
// the compiled-module path: the LoadManager opens it, its embedded version
// is checked against the runtime's, and the embedded wasm bytes run through
// the normal decoder.
func (l *Loader) ParseModule(path string) (*wasm.Module, error) {
	if !strings.HasSuffix(path, ".so") {
		r, err := binreader.NewFileReader(path)
		if err != nil {
			log.Logger().Error("parse module failed", zap.String("path", path), zap.Error(err))
			return nil, err
		}
		return binary.DecodeModule(r)
	}

	lm := l.LMgr
	if lm == nil {
		lm = &ELFLoadManager{}
	}
	if err := lm.SetPath(path); err != nil {
		log.Logger().Error("compiled module open failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	v, err := lm.GetVersion()
	if err != nil {
		return nil, err
	}
	if err := version.CheckCompiled(v); err != nil {
		log.Logger().Error("compiled module version mismatch",
			zap.String("path", path), zap.String("version", v), zap.Error(err))
		return nil, err
	}
	code, err := lm.GetWasmBytes()
	if err != nil {
		return nil, err
	}
	return binary.DecodeModuleBytes(code)
}

// ParseModuleBytes decodes a module from an in-memory binary.
func (l *Loader) ParseModuleBytes(code []byte) (*wasm.Module, error) {
	return binary.DecodeModuleBytes(code)
}
