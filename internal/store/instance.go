package store

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// ModuleInstance is the runtime face of a module: its per-kind address
// vectors into the store (imports occupy the low indices) and the named
// export map per kind.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-moduleinst
type ModuleInstance struct {
	Name string
	Addr Address

	// Registered modules survive StoreManager.Reset: host import objects
	// and wasm modules registered under a name. Anonymous instantiations
	// are discarded by the next top-level register/instantiate.
	Registered bool

	FuncAddrs   []Address
	TableAddrs  []Address
	MemAddrs    []Address
	GlobalAddrs []Address

	// Types and TypeIDs mirror the module's type section; TypeIDs are the
	// store-interned ids used by call_indirect.
	Types   []*wasm.FunctionType
	TypeIDs []FunctionTypeID

	// Exports are per kind; names are unique within one kind.
	ExportFuncs   map[string]Address
	ExportTables  map[string]Address
	ExportMems    map[string]Address
	ExportGlobals map[string]Address
}

// NewModuleInstance returns an empty module instance with initialized
// export maps.
func NewModuleInstance(name string, registered bool) *ModuleInstance {
	return &ModuleInstance{
		Name:          name,
		Registered:    registered,
		ExportFuncs:   map[string]Address{},
		ExportTables:  map[string]Address{},
		ExportMems:    map[string]Address{},
		ExportGlobals: map[string]Address{},
	}
}

// Export registers one export by kind and name. The decoder already
// guarantees per-kind uniqueness for wasm modules; host import objects are
// keyed maps and unique by construction.
func (m *ModuleInstance) Export(et wasm.ExternType, name string, addr Address) {
	switch et {
	case wasm.ExternTypeFunc:
		m.ExportFuncs[name] = addr
	case wasm.ExternTypeTable:
		m.ExportTables[name] = addr
	case wasm.ExternTypeMemory:
		m.ExportMems[name] = addr
	case wasm.ExternTypeGlobal:
		m.ExportGlobals[name] = addr
	}
}

// FindExport resolves an export by kind and name.
func (m *ModuleInstance) FindExport(et wasm.ExternType, name string) (Address, bool) {
	switch et {
	case wasm.ExternTypeFunc:
		a, ok := m.ExportFuncs[name]
		return a, ok
	case wasm.ExternTypeTable:
		a, ok := m.ExportTables[name]
		return a, ok
	case wasm.ExternTypeMemory:
		a, ok := m.ExportMems[name]
		return a, ok
	case wasm.ExternTypeGlobal:
		a, ok := m.ExportGlobals[name]
		return a, ok
	}
	return 0, false
}

// FunctionInstance is either a wasm function (owner module, signature,
// locals and decoded body) or a host function (signature plus callable).
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-instances%E2%91%A0
type FunctionInstance struct {
	// Owner is the address of the module this function belongs to, through
	// which call-time module-local index spaces are resolved.
	Owner Address

	Type   *wasm.FunctionType
	TypeID FunctionTypeID

	// LocalTypes and Body are set for wasm functions.
	LocalTypes []wasm.ValueType
	Body       []wasm.Instruction

	// HostFn is set for host functions; the other execution fields are
	// ignored when it is non-nil.
	HostFn api.HostFunction

	// Name is for debugging and error messages only.
	Name string
}

// IsHost returns true for a host function instance.
func (f *FunctionInstance) IsHost() bool { return f.HostFn != nil }

// GlobalInstance represents a global instance in a store.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-instances%E2%91%A0
type GlobalInstance struct {
	Owner Address
	Type  *wasm.GlobalType
	Val   wasm.Value
}

// Set replaces the value, refusing both type changes and writes to an
// immutable global.
func (g *GlobalInstance) Set(v wasm.Value) error {
	if !g.Type.Mutable {
		return errcode.ErrImmutableGlobal
	}
	if v.Type != g.Type.ValType {
		return errors.Wrapf(errcode.ErrTypeMismatch, "global holds %s, not %s",
			wasm.ValueTypeName(g.Type.ValType), wasm.ValueTypeName(v.Type))
	}
	g.Val = v
	return nil
}
