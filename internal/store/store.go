// Package store holds the runtime world: function, table, memory, global
// and module instances, each addressed by a dense integer handle. Modules
// reference store entities exclusively by address; the only back-reference
// is the owner-module address carried by instances, needed to resolve
// module-local index spaces at call time.
package store

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/log"
	"github.com/zenovm/zeno/internal/wasm"
)

// Address is a dense handle into one of the store's entity arrays. An
// address is stable for the store's lifetime: entities freed on Reset leave
// a dead slot behind rather than shifting their neighbors, and dead
// addresses are never reused.
type Address = uint32

// FunctionTypeID is a store-scoped integer assigned per unique function
// signature, used for the call_indirect type check.
type FunctionTypeID = uint32

// UninitializedTypeID marks a table slot no element segment has written.
const UninitializedTypeID FunctionTypeID = math.MaxUint32

// StoreManager owns every runtime instance. It is not safe for concurrent
// use; one interpreter has exclusive mutable access to its store.
type StoreManager struct {
	funcs   []*FunctionInstance
	tables  []*TableInstance
	mems    []*MemoryInstance
	globals []*GlobalInstance
	mods    []*ModuleInstance

	modNames map[string]Address
	typeIDs  map[string]FunctionTypeID
}

// NewStoreManager returns an empty store.
func NewStoreManager() *StoreManager {
	return &StoreManager{
		modNames: map[string]Address{},
		typeIDs:  map[string]FunctionTypeID{},
	}
}

// Reset discards the entities owned by prior anonymous instantiations,
// preserving modules registered under a name (host import objects and
// registered wasm modules). Freed slots stay dead: their addresses are
// never handed out again.
func (s *StoreManager) Reset() {
	anonymous := map[Address]bool{}
	for i, m := range s.mods {
		if m != nil && !m.Registered {
			anonymous[Address(i)] = true
		}
	}
	if len(anonymous) == 0 {
		return
	}

	for i, f := range s.funcs {
		if f != nil && anonymous[f.Owner] {
			s.funcs[i] = nil
		}
	}
	for i, t := range s.tables {
		if t != nil && anonymous[t.Owner] {
			s.tables[i] = nil
		}
	}
	for i, m := range s.mems {
		if m != nil && anonymous[m.Owner] {
			s.mems[i] = nil
		}
	}
	for i, g := range s.globals {
		if g != nil && anonymous[g.Owner] {
			s.globals[i] = nil
		}
	}
	for addr := range anonymous {
		if name := s.mods[addr].Name; name != "" && s.modNames[name] == addr {
			delete(s.modNames, name)
		}
		s.mods[addr] = nil
	}
	log.Logger().Debug("store reset", zap.Int("discarded_modules", len(anonymous)))
}

// ImportModule adds a module instance and returns its address, registering
// its name for FindModule when one is set.
func (s *StoreManager) ImportModule(m *ModuleInstance) Address {
	addr := Address(len(s.mods))
	m.Addr = addr
	s.mods = append(s.mods, m)
	if m.Name != "" {
		s.modNames[m.Name] = addr
	}
	return addr
}

// FindModule resolves a registered module name.
func (s *StoreManager) FindModule(name string) (Address, bool) {
	addr, ok := s.modNames[name]
	return addr, ok
}

// GetModule returns the module at addr, or ErrWrongInstanceAddress if the
// address is dead or was never allocated.
func (s *StoreManager) GetModule(addr Address) (*ModuleInstance, error) {
	if int(addr) >= len(s.mods) || s.mods[addr] == nil {
		return nil, errors.Wrapf(errcode.ErrWrongInstanceAddress, "module address %d", addr)
	}
	return s.mods[addr], nil
}

// AllocateFunction adds a function instance and returns its address.
func (s *StoreManager) AllocateFunction(f *FunctionInstance) Address {
	addr := Address(len(s.funcs))
	s.funcs = append(s.funcs, f)
	return addr
}

// GetFunction returns the function at addr, or ErrWrongInstanceAddress.
func (s *StoreManager) GetFunction(addr Address) (*FunctionInstance, error) {
	if int(addr) >= len(s.funcs) || s.funcs[addr] == nil {
		return nil, errors.Wrapf(errcode.ErrWrongInstanceAddress, "function address %d", addr)
	}
	return s.funcs[addr], nil
}

// AllocateTable adds a table instance and returns its address.
func (s *StoreManager) AllocateTable(t *TableInstance) Address {
	addr := Address(len(s.tables))
	s.tables = append(s.tables, t)
	return addr
}

// GetTable returns the table at addr, or ErrWrongInstanceAddress.
func (s *StoreManager) GetTable(addr Address) (*TableInstance, error) {
	if int(addr) >= len(s.tables) || s.tables[addr] == nil {
		return nil, errors.Wrapf(errcode.ErrWrongInstanceAddress, "table address %d", addr)
	}
	return s.tables[addr], nil
}

// AllocateMemory adds a memory instance and returns its address.
func (s *StoreManager) AllocateMemory(m *MemoryInstance) Address {
	addr := Address(len(s.mems))
	s.mems = append(s.mems, m)
	return addr
}

// GetMemory returns the memory at addr, or ErrWrongInstanceAddress.
func (s *StoreManager) GetMemory(addr Address) (*MemoryInstance, error) {
	if int(addr) >= len(s.mems) || s.mems[addr] == nil {
		return nil, errors.Wrapf(errcode.ErrWrongInstanceAddress, "memory address %d", addr)
	}
	return s.mems[addr], nil
}

// AllocateGlobal adds a global instance and returns its address.
func (s *StoreManager) AllocateGlobal(g *GlobalInstance) Address {
	addr := Address(len(s.globals))
	s.globals = append(s.globals, g)
	return addr
}

// GetGlobal returns the global at addr, or ErrWrongInstanceAddress.
func (s *StoreManager) GetGlobal(addr Address) (*GlobalInstance, error) {
	if int(addr) >= len(s.globals) || s.globals[addr] == nil {
		return nil, errors.Wrapf(errcode.ErrWrongInstanceAddress, "global address %d", addr)
	}
	return s.globals[addr], nil
}

// GetTypeID interns a function signature, so equal signatures share an id
// store-wide regardless of which module declared them.
func (s *StoreManager) GetTypeID(t *wasm.FunctionType) FunctionTypeID {
	key := t.String()
	id, ok := s.typeIDs[key]
	if !ok {
		id = FunctionTypeID(len(s.typeIDs))
		s.typeIDs[key] = id
	}
	return id
}

// Snapshot records the store's entity counts so a failed instantiation can
// roll back everything it allocated.
type Snapshot struct {
	funcs, tables, mems, globals, mods int
}

// Snapshot returns the current entity counts.
func (s *StoreManager) Snapshot() Snapshot {
	return Snapshot{
		funcs:   len(s.funcs),
		tables:  len(s.tables),
		mems:    len(s.mems),
		globals: len(s.globals),
		mods:    len(s.mods),
	}
}

// Rollback truncates every entity array to the snapshot, undoing all
// allocations made since. Only valid while no later snapshot is live.
func (s *StoreManager) Rollback(sn Snapshot) {
	for _, m := range s.mods[sn.mods:] {
		if m != nil && m.Name != "" && int(s.modNames[m.Name]) >= sn.mods {
			delete(s.modNames, m.Name)
		}
	}
	s.funcs = s.funcs[:sn.funcs]
	s.tables = s.tables[:sn.tables]
	s.mems = s.mems[:sn.mems]
	s.globals = s.globals[:sn.globals]
	s.mods = s.mods[:sn.mods]
}

// LiveCounts reports how many function/table/memory/global slots are live,
// which the rollback tests assert on.
func (s *StoreManager) LiveCounts() (funcs, tables, mems, globals int) {
	for _, f := range s.funcs {
		if f != nil {
			funcs++
		}
	}
	for _, t := range s.tables {
		if t != nil {
			tables++
		}
	}
	for _, m := range s.mems {
		if m != nil {
			mems++
		}
	}
	for _, g := range s.globals {
		if g != nil {
			globals++
		}
	}
	return
}
