package zeno

import (
	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/interpreter"
)

// ImportObject aggregates host-provided entities under one module name:
// functions, tables, memories and globals, each keyed by export name. Its
// entities are allocated into the store at registration and persist across
// top-level operations.
type ImportObject struct {
	name     string
	funcs    map[string]api.HostFunction
	tables   map[string]*interpreter.HostTable
	memories map[string]*interpreter.HostMemory
	globals  map[string]*interpreter.HostGlobal
}

// NewImportObject returns an empty import object for the module name.
func NewImportObject(name string) *ImportObject {
	return &ImportObject{
		name:     name,
		funcs:    map[string]api.HostFunction{},
		tables:   map[string]*interpreter.HostTable{},
		memories: map[string]*interpreter.HostMemory{},
		globals:  map[string]*interpreter.HostGlobal{},
	}
}

// AddFunction exports a host function. The callable receives the calling
// module's memory and the popped arguments; returning an error traps the
// calling execution.
func (o *ImportObject) AddFunction(name string, fn api.HostFunction) *ImportObject {
	o.funcs[name] = fn
	return o
}

// AddGoFunc exports a plain Go function with the given signature.
func (o *ImportObject) AddGoFunc(name string, t *api.FunctionType, fn func(mem api.Memory, params []api.Value) ([]api.Value, error)) *ImportObject {
	return o.AddFunction(name, &api.GoFunc{FuncType: t, Fn: fn})
}

// AddTable exports a host table of min slots, growable to max when non-nil.
func (o *ImportObject) AddTable(name string, min uint32, max *uint32) *ImportObject {
	o.tables[name] = &interpreter.HostTable{Min: min, Max: max}
	return o
}

// AddMemory exports a host memory of min pages, growable to max pages; a
// zero max means the 65536-page ceiling.
func (o *ImportObject) AddMemory(name string, min, max uint32) *ImportObject {
	o.memories[name] = &interpreter.HostMemory{Min: min, Max: max}
	return o
}

// AddGlobal exports a host global with the given initial value.
func (o *ImportObject) AddGlobal(name string, init api.Value, mutable bool) *ImportObject {
	o.globals[name] = &interpreter.HostGlobal{Type: init.Type, Mutable: mutable, Init: init}
	return o
}

// host lowers the import object to the interpreter's registration form.
func (o *ImportObject) host() *interpreter.HostModule {
	return &interpreter.HostModule{
		Name:      o.name,
		Functions: o.funcs,
		Tables:    o.tables,
		Memories:  o.memories,
		Globals:   o.globals,
	}
}
