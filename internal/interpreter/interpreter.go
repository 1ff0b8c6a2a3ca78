// Package interpreter drives instantiation and executes wasm functions
// directly over the decoded instruction tree: an operand stack of tagged
// values, call frames with locals, and branch-label arithmetic expressed as
// a branch counter unwinding through enclosing blocks.
package interpreter

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/log"
	"github.com/zenovm/zeno/internal/store"
	"github.com/zenovm/zeno/internal/wasm"
)

// defaultCallDepthCeiling bounds recursion so runaway wasm turns into a
// trap instead of exhausting the Go stack.
const defaultCallDepthCeiling = 2000

// TickFunc is called before each instruction dispatch when set. Returning
// true requests a trap: the next dispatch raises ErrInterrupted. Embedders
// use it for fuel/gas metering and timeouts.
type TickFunc func() bool

// Interpreter owns the execution stacks and instantiates and runs modules
// against a StoreManager. It is single-threaded: one interpreter has
// exclusive mutable access to its store while executing.
type Interpreter struct {
	stack  []wasm.Value
	frames []*callFrame

	tick             TickFunc
	callDepthCeiling int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithTick installs the per-instruction tick callback.
func WithTick(t TickFunc) Option {
	return func(it *Interpreter) { it.tick = t }
}

// WithCallDepthCeiling overrides the call-frame ceiling.
func WithCallDepthCeiling(n int) Option {
	return func(it *Interpreter) { it.callDepthCeiling = n }
}

// New returns an Interpreter with the given options applied.
func New(opts ...Option) *Interpreter {
	it := &Interpreter{callDepthCeiling: defaultCallDepthCeiling}
	for _, o := range opts {
		o(it)
	}
	return it
}

// callFrame is one function activation: the owning module resolved from the
// store, the locals (params first, declared locals zero-initialized), and
// the operand-stack height at entry, restored when the frame returns.
type callFrame struct {
	module *store.ModuleInstance
	// memory and table are the frame's module-local instances, resolved
	// once at entry; nil when the module declares neither.
	memory *store.MemoryInstance
	table  *store.TableInstance
	locals []wasm.Value
	base   int
}

// HostTable, HostMemory and HostGlobal describe host-provided entities in
// an import object; the store instances are allocated at registration.
type HostTable struct {
	Min uint32
	Max *uint32
}

type HostMemory struct {
	Min, Max uint32
}

type HostGlobal struct {
	Type    wasm.ValueType
	Mutable bool
	Init    wasm.Value
}

// HostModule is the runtime form of an import object: a module name plus
// name-keyed host entities exported under it.
type HostModule struct {
	Name      string
	Functions map[string]api.HostFunction
	Tables    map[string]*HostTable
	Memories  map[string]*HostMemory
	Globals   map[string]*HostGlobal
}

// RegisterHostModule registers a host import object as a named, persistent
// module: its entities survive store resets and are importable by any
// module instantiated later.
func (it *Interpreter) RegisterHostModule(s *store.StoreManager, obj *HostModule) (store.Address, error) {
	s.Reset()
	if _, ok := s.FindModule(obj.Name); ok {
		log.Logger().Error("host module name conflict", zap.String("module", obj.Name))
		return 0, errors.Wrapf(errcode.ErrModuleNameConflict, "%q", obj.Name)
	}

	snapshot := s.Snapshot()
	inst := store.NewModuleInstance(obj.Name, true)
	modAddr := s.ImportModule(inst)

	for name, fn := range obj.Functions {
		ft := fn.Type()
		if len(ft.Results) > 1 {
			s.Rollback(snapshot)
			return 0, errors.Wrapf(errcode.ErrValidationFailed,
				"host function %s.%s has %d results", obj.Name, name, len(ft.Results))
		}
		addr := s.AllocateFunction(&store.FunctionInstance{
			Owner:  modAddr,
			Type:   ft,
			TypeID: s.GetTypeID(ft),
			HostFn: fn,
			Name:   obj.Name + "." + name,
		})
		inst.FuncAddrs = append(inst.FuncAddrs, addr)
		inst.Export(wasm.ExternTypeFunc, name, addr)
	}
	for name, t := range obj.Tables {
		addr := s.AllocateTable(store.NewTableInstance(modAddr, t.Min, t.Max))
		inst.TableAddrs = append(inst.TableAddrs, addr)
		inst.Export(wasm.ExternTypeTable, name, addr)
	}
	for name, m := range obj.Memories {
		max := m.Max
		if max == 0 {
			max = wasm.MemoryMaxPages
		}
		addr := s.AllocateMemory(store.NewMemoryInstance(modAddr, m.Min, max))
		inst.MemAddrs = append(inst.MemAddrs, addr)
		inst.Export(wasm.ExternTypeMemory, name, addr)
	}
	for name, g := range obj.Globals {
		addr := s.AllocateGlobal(&store.GlobalInstance{
			Owner: modAddr,
			Type:  &wasm.GlobalType{ValType: g.Type, Mutable: g.Mutable},
			Val:   g.Init,
		})
		inst.GlobalAddrs = append(inst.GlobalAddrs, addr)
		inst.Export(wasm.ExternTypeGlobal, name, addr)
	}

	log.Logger().Debug("registered host module",
		zap.String("module", obj.Name), zap.Int("functions", len(obj.Functions)))
	return modAddr, nil
}

// RegisterModule instantiates a wasm module under a persistent name, so its
// exports are importable by modules instantiated later and survive resets.
func (it *Interpreter) RegisterModule(s *store.StoreManager, m *wasm.Module, name string) (store.Address, error) {
	s.Reset()
	return it.instantiate(s, m, name, true)
}

// InstantiateModule instantiates a module as the store's active anonymous
// instance, discarding the previous one. The instance stays live for
// subsequent Invoke calls until the next top-level register or instantiate.
func (it *Interpreter) InstantiateModule(s *store.StoreManager, m *wasm.Module, name string) (store.Address, error) {
	s.Reset()
	return it.instantiate(s, m, name, false)
}

// Invoke calls the function at funcAddr with the given parameters, checking
// count and types against the callee signature, and returns the results in
// declaration order.
func (it *Interpreter) Invoke(s *store.StoreManager, funcAddr store.Address, params []wasm.Value) ([]wasm.Value, error) {
	f, err := s.GetFunction(funcAddr)
	if err != nil {
		log.Logger().Error("invoke of unknown function address",
			zap.Uint32("addr", funcAddr), zap.Error(err))
		return nil, err
	}

	if len(params) != len(f.Type.Params) {
		return nil, errors.Wrapf(errcode.ErrFuncSigMismatch,
			"expected %d params, got %d", len(f.Type.Params), len(params))
	}
	for i, p := range params {
		if p.Type != f.Type.Params[i] {
			return nil, errors.Wrapf(errcode.ErrFuncSigMismatch,
				"param %d is %s, expected %s", i, wasm.ValueTypeName(p.Type), wasm.ValueTypeName(f.Type.Params[i]))
		}
	}

	// A host function may re-enter Invoke mid-execution; only an outermost
	// invocation owns the stacks and may clear partial state left by a
	// prior failed invocation.
	outermost := len(it.frames) == 0
	if outermost {
		it.stack = it.stack[:0]
	}

	for _, p := range params {
		it.push(p)
	}
	if err := it.runProtected(s, f); err != nil {
		if outermost {
			it.stack = it.stack[:0]
			it.frames = it.frames[:0]
		}
		log.Logger().Warn("invocation trapped", zap.String("function", f.Name), zap.Error(err))
		return nil, err
	}

	results := make([]wasm.Value, len(f.Type.Results))
	for i := range results {
		results[len(results)-1-i] = it.pop()
	}
	return results, nil
}

func (it *Interpreter) push(v wasm.Value) {
	it.stack = append(it.stack, v)
}

func (it *Interpreter) pop() (v wasm.Value) {
	v = it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	return
}

func (it *Interpreter) popN(n int) []wasm.Value {
	vs := make([]wasm.Value, n)
	copy(vs, it.stack[len(it.stack)-n:])
	it.stack = it.stack[:len(it.stack)-n]
	return vs
}

// truncate drops stack entries above height.
func (it *Interpreter) truncate(height int) {
	it.stack = it.stack[:height]
}
