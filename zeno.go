// Package zeno is a WebAssembly 1.0 (20191205) interpreter runtime. A VM
// loads, validates and instantiates modules against a store of runtime
// entities, and exposes exported functions for deterministic invocation.
//
// The embedding model is host-driven: host modules registered through an
// ImportObject persist across top-level operations, while each
// InstantiateModule replaces the previous anonymous instance.
package zeno

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/interpreter"
	"github.com/zenovm/zeno/internal/loader"
	"github.com/zenovm/zeno/internal/log"
	"github.com/zenovm/zeno/internal/store"
	"github.com/zenovm/zeno/internal/wasm"
)

// Module is a decoded, validated wasm module, ready to register or
// instantiate any number of times.
type Module struct {
	m *wasm.Module
}

// VM ties the loader, store and interpreter together behind the
// programmatic API. A VM is single-threaded; concurrent use requires one VM
// per goroutine, which is safe by construction as VMs share nothing.
type VM struct {
	store  *store.StoreManager
	interp *interpreter.Interpreter
	loader *loader.Loader
}

// NewVM returns a VM with the given configuration, or the defaults when nil.
func NewVM(config *RuntimeConfig) *VM {
	if config == nil {
		config = NewRuntimeConfig()
	}
	if config.logger != nil {
		log.SetLogger(config.logger)
	}
	var opts []interpreter.Option
	if config.tick != nil {
		opts = append(opts, interpreter.WithTick(interpreter.TickFunc(config.tick)))
	}
	if config.callDepthCeiling > 0 {
		opts = append(opts, interpreter.WithCallDepthCeiling(config.callDepthCeiling))
	}
	l := loader.New()
	if config.loadManager != nil {
		l.LMgr = config.loadManager
	}
	return &VM{
		store:  store.NewStoreManager(),
		interp: interpreter.New(opts...),
		loader: l,
	}
}

// LoadWasmFile parses and validates the module at path. A ".so" suffix
// selects the compiled-module path, whose embedded wasm bytes run through
// the same decoder after the version gate.
func (vm *VM) LoadWasmFile(path string) (*Module, error) {
	m, err := vm.loader.ParseModule(path)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Module{m: m}, nil
}

// DecodeModule parses and validates a module from an in-memory binary.
func (vm *VM) DecodeModule(bin []byte) (*Module, error) {
	m, err := vm.loader.ParseModuleBytes(bin)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Module{m: m}, nil
}

// RegisterModule registers a host import object as a persistent named
// module whose exports satisfy the imports of modules instantiated later.
func (vm *VM) RegisterModule(obj *ImportObject) error {
	_, err := vm.interp.RegisterHostModule(vm.store, obj.host())
	return err
}

// RegisterNamedModule instantiates a wasm module under a persistent name,
// like a host module but implemented in wasm.
func (vm *VM) RegisterNamedModule(name string, mod *Module) (*Instance, error) {
	if name == "" {
		return nil, errors.Wrap(errcode.ErrModuleNameConflict, "registered module requires a name")
	}
	addr, err := vm.interp.RegisterModule(vm.store, mod.m, name)
	if err != nil {
		return nil, err
	}
	return &Instance{vm: vm, addr: addr}, nil
}

// InstantiateModule instantiates a module as the VM's active anonymous
// instance. The previous anonymous instance, if any, is discarded; host
// modules and registered modules persist.
func (vm *VM) InstantiateModule(name string, mod *Module) (*Instance, error) {
	addr, err := vm.interp.InstantiateModule(vm.store, mod.m, name)
	if err != nil {
		return nil, err
	}
	return &Instance{vm: vm, addr: addr}, nil
}

// Invoke calls the function at funcAddr with the given parameters, checking
// count and types against the signature, and returns the results in
// declaration order.
func (vm *VM) Invoke(funcAddr uint32, params ...api.Value) ([]api.Value, error) {
	return vm.interp.Invoke(vm.store, funcAddr, params)
}

// FindModule resolves a registered or named module by name.
func (vm *VM) FindModule(name string) (*Instance, error) {
	addr, ok := vm.store.FindModule(name)
	if !ok {
		return nil, errors.Wrapf(errcode.ErrWrongInstanceAddress, "module %q", name)
	}
	return &Instance{vm: vm, addr: addr}, nil
}

// Instance is a handle to an instantiated module in the VM's store.
type Instance struct {
	vm   *VM
	addr store.Address
}

// FunctionAddress resolves an exported function to its store address for
// Invoke.
func (i *Instance) FunctionAddress(name string) (uint32, error) {
	inst, err := i.vm.store.GetModule(i.addr)
	if err != nil {
		return 0, err
	}
	addr, ok := inst.ExportFuncs[name]
	if !ok {
		return 0, errors.Wrapf(errcode.ErrWrongInstanceAddress, "function %q is not exported", name)
	}
	return addr, nil
}

// Memory returns an exported memory.
func (i *Instance) Memory(name string) (api.Memory, error) {
	inst, err := i.vm.store.GetModule(i.addr)
	if err != nil {
		return nil, err
	}
	addr, ok := inst.ExportMems[name]
	if !ok {
		return nil, errors.Wrapf(errcode.ErrWrongInstanceAddress, "memory %q is not exported", name)
	}
	return i.vm.store.GetMemory(addr)
}

// Global returns the current value of an exported global.
func (i *Instance) Global(name string) (api.Value, error) {
	inst, err := i.vm.store.GetModule(i.addr)
	if err != nil {
		return api.Value{}, err
	}
	addr, ok := inst.ExportGlobals[name]
	if !ok {
		return api.Value{}, errors.Wrapf(errcode.ErrWrongInstanceAddress, "global %q is not exported", name)
	}
	g, err := i.vm.store.GetGlobal(addr)
	if err != nil {
		return api.Value{}, err
	}
	return g.Val, nil
}
