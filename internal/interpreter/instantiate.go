package interpreter

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/log"
	"github.com/zenovm/zeno/internal/store"
	"github.com/zenovm/zeno/internal/wasm"
)

// instantiate runs the instantiation protocol in its fixed order: resolve
// imports, allocate the module shell with imported addresses first, allocate
// own entities, build exports, then element segments, data segments, and
// the start function. Any failure rolls the store back to its state before
// the call.
func (it *Interpreter) instantiate(s *store.StoreManager, m *wasm.Module, name string, registered bool) (addr store.Address, err error) {
	if name != "" {
		if _, ok := s.FindModule(name); ok {
			log.Logger().Error("module name conflict", zap.String("module", name))
			return 0, errors.Wrapf(errcode.ErrModuleNameConflict, "%q", name)
		}
	}

	snapshot := s.Snapshot()
	defer func() {
		if err != nil {
			s.Rollback(snapshot)
			log.Logger().Warn("instantiation rolled back", zap.String("module", name), zap.Error(err))
		}
	}()

	// 1. Resolve imports against host-registered modules.
	imports, err := resolveImports(s, m)
	if err != nil {
		return 0, err
	}

	// 2. Allocate the module shell; imported addresses occupy the low
	// indices of each index space.
	inst := store.NewModuleInstance(name, registered)
	modAddr := s.ImportModule(inst)
	inst.FuncAddrs = append(inst.FuncAddrs, imports.funcs...)
	inst.TableAddrs = append(inst.TableAddrs, imports.tables...)
	inst.MemAddrs = append(inst.MemAddrs, imports.mems...)
	inst.GlobalAddrs = append(inst.GlobalAddrs, imports.globals...)

	inst.Types = m.TypeSection
	inst.TypeIDs = make([]store.FunctionTypeID, len(m.TypeSection))
	for i, t := range m.TypeSection {
		inst.TypeIDs[i] = s.GetTypeID(t)
	}

	// 3. Allocate own entities in declared order: functions, tables,
	// memories, then globals with their initializers evaluated against the
	// globals already in place.
	for i, typeIdx := range m.FunctionSection {
		ft := m.TypeSection[typeIdx]
		code := m.CodeSection[i]
		faddr := s.AllocateFunction(&store.FunctionInstance{
			Owner:      modAddr,
			Type:       ft,
			TypeID:     inst.TypeIDs[typeIdx],
			LocalTypes: code.LocalTypes,
			Body:       code.Body,
		})
		inst.FuncAddrs = append(inst.FuncAddrs, faddr)
	}
	for _, t := range m.TableSection {
		taddr := s.AllocateTable(store.NewTableInstance(modAddr, t.Limit.Min, t.Limit.Max))
		inst.TableAddrs = append(inst.TableAddrs, taddr)
	}
	for _, mem := range m.MemorySection {
		maddr := s.AllocateMemory(store.NewMemoryInstance(modAddr, mem.Min, mem.Max))
		inst.MemAddrs = append(inst.MemAddrs, maddr)
	}
	for _, g := range m.GlobalSection {
		val, err := evalConstExpr(s, inst, g.Init)
		if err != nil {
			return 0, err
		}
		if val.Type != g.Type.ValType {
			return 0, errors.Wrapf(errcode.ErrTypeMismatch,
				"global initializer is %s, declared %s",
				wasm.ValueTypeName(val.Type), wasm.ValueTypeName(g.Type.ValType))
		}
		gaddr := s.AllocateGlobal(&store.GlobalInstance{Owner: modAddr, Type: g.Type, Val: val})
		inst.GlobalAddrs = append(inst.GlobalAddrs, gaddr)
	}

	// 4. Exports; per-kind name uniqueness was checked at decode time.
	for _, exp := range m.ExportSection {
		var target store.Address
		switch exp.Type {
		case wasm.ExternTypeFunc:
			target = inst.FuncAddrs[exp.Index]
		case wasm.ExternTypeTable:
			target = inst.TableAddrs[exp.Index]
		case wasm.ExternTypeMemory:
			target = inst.MemAddrs[exp.Index]
		case wasm.ExternTypeGlobal:
			target = inst.GlobalAddrs[exp.Index]
		}
		inst.Export(exp.Type, exp.Name, target)
	}

	// 5+6. Element and data segments: every segment of both kinds is
	// bounds-checked before a single slot or byte is written, so an
	// out-of-range segment leaves tables and memories untouched.
	elemOffsets, err := it.validateElements(s, inst, m.ElementSection)
	if err != nil {
		return 0, err
	}
	dataOffsets, err := it.validateData(s, inst, m.DataSection)
	if err != nil {
		return 0, err
	}
	if err := it.applyElements(s, inst, m.ElementSection, elemOffsets); err != nil {
		return 0, err
	}
	if err := it.applyData(s, inst, m.DataSection, dataOffsets); err != nil {
		return 0, err
	}

	// 7. The start function runs with the module fully wired; a trap aborts
	// the whole instantiation.
	if m.StartSection != nil {
		f, err := s.GetFunction(inst.FuncAddrs[*m.StartSection])
		if err != nil {
			return 0, err
		}
		outermost := len(it.frames) == 0
		if outermost {
			it.stack = it.stack[:0]
		}
		if err := it.runProtected(s, f); err != nil {
			if outermost {
				it.stack = it.stack[:0]
				it.frames = it.frames[:0]
			}
			return 0, errors.WithMessagef(err, "start function of module %q", name)
		}
	}

	log.Logger().Debug("instantiated module",
		zap.String("module", name), zap.Bool("registered", registered),
		zap.Int("functions", len(inst.FuncAddrs)))
	return modAddr, nil
}

// resolvedImports carries the store addresses satisfying a module's
// imports, per kind, in import declaration order.
type resolvedImports struct {
	funcs, tables, mems, globals []store.Address
}

func resolveImports(s *store.StoreManager, m *wasm.Module) (*resolvedImports, error) {
	ret := &resolvedImports{}
	for _, imp := range m.ImportSection {
		modAddr, ok := s.FindModule(imp.Module)
		if !ok {
			return nil, errors.Wrapf(errcode.ErrUnknownImport, "module %q", imp.Module)
		}
		exporter, err := s.GetModule(modAddr)
		if err != nil {
			return nil, err
		}

		addr, ok := exporter.FindExport(imp.Type, imp.Name)
		if !ok {
			// Exported under another kind is a kind mismatch, absent
			// entirely is an unknown import.
			for _, other := range []wasm.ExternType{
				wasm.ExternTypeFunc, wasm.ExternTypeTable, wasm.ExternTypeMemory, wasm.ExternTypeGlobal,
			} {
				if other == imp.Type {
					continue
				}
				if _, found := exporter.FindExport(other, imp.Name); found {
					return nil, errors.Wrapf(errcode.ErrImportTypeMismatch,
						"%s.%s is not a %s", imp.Module, imp.Name, wasm.ExternTypeName(imp.Type))
				}
			}
			return nil, errors.Wrapf(errcode.ErrUnknownImport, "%s.%s", imp.Module, imp.Name)
		}

		switch imp.Type {
		case wasm.ExternTypeFunc:
			f, err := s.GetFunction(addr)
			if err != nil {
				return nil, err
			}
			expected := m.TypeSection[imp.DescFunc]
			if !f.Type.EqualsSignature(expected.Params, expected.Results) {
				return nil, errors.Wrapf(errcode.ErrIncompatibleImportType,
					"function %s.%s: signature %s, import declares %s",
					imp.Module, imp.Name, f.Type.String(), expected.String())
			}
			ret.funcs = append(ret.funcs, addr)
		case wasm.ExternTypeTable:
			t, err := s.GetTable(addr)
			if err != nil {
				return nil, err
			}
			if err := matchLimits(t.Min, t.Max, imp.DescTable.Limit); err != nil {
				return nil, errors.WithMessagef(err, "table %s.%s", imp.Module, imp.Name)
			}
			ret.tables = append(ret.tables, addr)
		case wasm.ExternTypeMemory:
			mem, err := s.GetMemory(addr)
			if err != nil {
				return nil, err
			}
			if mem.Min < imp.DescMem.Min {
				return nil, errors.Wrapf(errcode.ErrIncompatibleImportType,
					"memory %s.%s: minimum %d pages, import requires %d",
					imp.Module, imp.Name, mem.Min, imp.DescMem.Min)
			}
			if imp.DescMem.IsMaxEncoded && mem.Max > imp.DescMem.Max {
				return nil, errors.Wrapf(errcode.ErrIncompatibleImportType,
					"memory %s.%s: maximum %d pages exceeds import's %d",
					imp.Module, imp.Name, mem.Max, imp.DescMem.Max)
			}
			ret.mems = append(ret.mems, addr)
		case wasm.ExternTypeGlobal:
			g, err := s.GetGlobal(addr)
			if err != nil {
				return nil, err
			}
			if g.Type.Mutable != imp.DescGlobal.Mutable || g.Type.ValType != imp.DescGlobal.ValType {
				return nil, errors.Wrapf(errcode.ErrIncompatibleImportType,
					"global %s.%s: type or mutability mismatch", imp.Module, imp.Name)
			}
			ret.globals = append(ret.globals, addr)
		default:
			return nil, errors.Wrapf(errcode.ErrImportTypeMismatch, "invalid import kind %#x", imp.Type)
		}
	}
	return ret, nil
}

// matchLimits applies the import-compatibility rule: the provided limits
// must be at least as permissive on min and at most as permissive on max.
func matchLimits(providedMin uint32, providedMax *uint32, required *wasm.Limits) error {
	if providedMin < required.Min {
		return errors.Wrapf(errcode.ErrIncompatibleImportType,
			"minimum %d below required %d", providedMin, required.Min)
	}
	if required.Max != nil {
		if providedMax == nil {
			return errors.Wrap(errcode.ErrIncompatibleImportType, "no maximum, import requires one")
		}
		if *providedMax > *required.Max {
			return errors.Wrapf(errcode.ErrIncompatibleImportType,
				"maximum %d exceeds required %d", *providedMax, *required.Max)
		}
	}
	return nil
}

// evalConstExpr is the minimal initializer evaluator: the four const
// opcodes plus global.get on an imported immutable global. It shares
// nothing with the main interpreter loop.
func evalConstExpr(s *store.StoreManager, inst *store.ModuleInstance, expr *wasm.ConstantExpression) (wasm.Value, error) {
	switch expr.Opcode {
	case wasm.OpcodeI32Const, wasm.OpcodeI64Const, wasm.OpcodeF32Const, wasm.OpcodeF64Const:
		return expr.Val, nil
	case wasm.OpcodeGlobalGet:
		if int(expr.GlobalIndex) >= len(inst.GlobalAddrs) {
			return wasm.Value{}, errors.Wrapf(errcode.ErrConstExprRequired,
				"global.get %d outside the global index space", expr.GlobalIndex)
		}
		g, err := s.GetGlobal(inst.GlobalAddrs[expr.GlobalIndex])
		if err != nil {
			return wasm.Value{}, err
		}
		if g.Type.Mutable {
			return wasm.Value{}, errors.Wrapf(errcode.ErrConstExprRequired,
				"global.get %d refers to a mutable global", expr.GlobalIndex)
		}
		return g.Val, nil
	default:
		return wasm.Value{}, errors.Wrapf(errcode.ErrConstExprRequired,
			"%s is not a constant instruction", wasm.InstructionName(expr.Opcode))
	}
}

// validateElements evaluates each segment's offset and bounds-checks it
// against the target table, returning the offsets so apply doesn't
// re-evaluate.
func (it *Interpreter) validateElements(s *store.StoreManager, inst *store.ModuleInstance, elems []*wasm.ElementSegment) ([]uint32, error) {
	offsets := make([]uint32, len(elems))
	for i, elem := range elems {
		v, err := evalConstExpr(s, inst, elem.OffsetExpr)
		if err != nil {
			return nil, err
		}
		if v.Type != wasm.ValueTypeI32 {
			return nil, errors.Wrap(errcode.ErrTypeMismatch, "element segment offset must be i32")
		}
		offset := uint32(v.Raw)
		t, err := s.GetTable(inst.TableAddrs[elem.TableIndex])
		if err != nil {
			return nil, err
		}
		if uint64(offset)+uint64(len(elem.Init)) > uint64(t.Len()) {
			return nil, errors.Wrapf(errcode.ErrElemSegDoesNotFit,
				"segment %d: offset %d + length %d > table length %d", i, offset, len(elem.Init), t.Len())
		}
		offsets[i] = offset
	}
	return offsets, nil
}

// validateData is symmetric to validateElements, over linear memory.
func (it *Interpreter) validateData(s *store.StoreManager, inst *store.ModuleInstance, data []*wasm.DataSegment) ([]uint32, error) {
	offsets := make([]uint32, len(data))
	for i, d := range data {
		v, err := evalConstExpr(s, inst, d.OffsetExpr)
		if err != nil {
			return nil, err
		}
		if v.Type != wasm.ValueTypeI32 {
			return nil, errors.Wrap(errcode.ErrTypeMismatch, "data segment offset must be i32")
		}
		offset := uint32(v.Raw)
		mem, err := s.GetMemory(inst.MemAddrs[d.MemoryIndex])
		if err != nil {
			return nil, err
		}
		if uint64(offset)+uint64(len(d.Init)) > uint64(len(mem.Buffer)) {
			return nil, errors.Wrapf(errcode.ErrDataSegDoesNotFit,
				"segment %d: offset %d + length %d > memory length %d", i, offset, len(d.Init), len(mem.Buffer))
		}
		offsets[i] = offset
	}
	return offsets, nil
}

func (it *Interpreter) applyElements(s *store.StoreManager, inst *store.ModuleInstance, elems []*wasm.ElementSegment, offsets []uint32) error {
	for i, elem := range elems {
		t, err := s.GetTable(inst.TableAddrs[elem.TableIndex])
		if err != nil {
			return err
		}
		for j, fidx := range elem.Init {
			faddr := inst.FuncAddrs[fidx]
			f, err := s.GetFunction(faddr)
			if err != nil {
				return err
			}
			t.Elements[offsets[i]+uint32(j)] = store.TableElement{
				FunctionAddr: faddr,
				TypeID:       f.TypeID,
			}
		}
	}
	return nil
}

func (it *Interpreter) applyData(s *store.StoreManager, inst *store.ModuleInstance, data []*wasm.DataSegment, offsets []uint32) error {
	for i, d := range data {
		mem, err := s.GetMemory(inst.MemAddrs[d.MemoryIndex])
		if err != nil {
			return err
		}
		copy(mem.Buffer[offsets[i]:], d.Init)
	}
	return nil
}
