package loader

import (
	"debug/elf"
	"strings"

	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/errcode"
)

// LoadManager is the seam through which the core consumes ahead-of-time
// compiled shared objects. The core only ever loads the embedded wasm bytes
// and version string; executing compiled code through the entry symbol is
// behind the same seam but not used by the interpreter-only engine.
type LoadManager interface {
	// SetPath opens the shared object at path.
	SetPath(path string) error
	// GetVersion returns the runtime version string embedded at build time.
	GetVersion() (string, error)
	// GetWasmBytes returns the original wasm binary embedded in the object.
	GetWasmBytes() ([]byte, error)
	// GetRawSymbol resolves a symbol's bytes, or nil when absent. The
	// interpreter-only engine never calls this with the ctor symbol.
	GetRawSymbol(name string) []byte
}

// Section names a compiled shared object carries. The build step that
// produces the object writes the original binary and the producing runtime
// version into these.
const (
	wasmSectionName    = ".zeno.wasm"
	versionSectionName = ".zeno.version"
)

// ELFLoadManager reads compiled modules as ELF shared objects, taking the
// embedded wasm and version from dedicated sections.
type ELFLoadManager struct {
	file *elf.File
	path string
}

// SetPath implements LoadManager.SetPath.
func (m *ELFLoadManager) SetPath(path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return errors.Wrapf(errcode.ErrInvalidPath, "%s: not a loadable shared object", path)
	}
	if m.file != nil {
		_ = m.file.Close()
	}
	m.file, m.path = f, path
	return nil
}

// GetVersion implements LoadManager.GetVersion.
func (m *ELFLoadManager) GetVersion() (string, error) {
	data, err := m.section(versionSectionName)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// GetWasmBytes implements LoadManager.GetWasmBytes.
func (m *ELFLoadManager) GetWasmBytes() ([]byte, error) {
	return m.section(wasmSectionName)
}

// GetRawSymbol implements LoadManager.GetRawSymbol. Symbol extraction is
// only meaningful to an engine that executes compiled code; this returns
// nil for everything.
func (m *ELFLoadManager) GetRawSymbol(string) []byte { return nil }

func (m *ELFLoadManager) section(name string) ([]byte, error) {
	if m.file == nil {
		return nil, errors.Wrap(errcode.ErrInvalidPath, "no shared object opened")
	}
	s := m.file.Section(name)
	if s == nil {
		return nil, errors.Wrapf(errcode.ErrMalformedBinary, "%s: missing section %s", m.path, name)
	}
	data, err := s.Data()
	if err != nil {
		return nil, errors.Wrapf(errcode.ErrReadError, "%s: section %s", m.path, name)
	}
	return data, nil
}
