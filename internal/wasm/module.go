package wasm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/errcode"
)

// Module is a decoded WebAssembly binary: an immutable tree of section
// vectors, each possibly empty. It references nothing outside itself; all
// cross-entity references are indices into the module's own index spaces.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#modules%E2%91%A8
type Module struct {
	// TypeSection contains the function signatures referenced by the
	// function section and call_indirect.
	//
	// Note: In the Binary Format, this is SectionIDType.
	TypeSection []*FunctionType

	// ImportSection contains imported functions, tables, memories or
	// globals required for instantiation. Imports occupy the low indices of
	// each index space.
	//
	// Note: In the Binary Format, this is SectionIDImport.
	ImportSection []*Import

	// FunctionSection maps each module-defined function to an index in
	// TypeSection. It is index-correlated with CodeSection.
	//
	// Note: In the Binary Format, this is SectionIDFunction.
	FunctionSection []Index

	// TableSection contains each table defined in this module. WebAssembly
	// 1.0 (20191205) allows at most one, and only when none is imported.
	//
	// Note: In the Binary Format, this is SectionIDTable.
	TableSection []*Table

	// MemorySection contains each memory defined in this module, with the
	// same at-most-one constraint as tables.
	//
	// Note: In the Binary Format, this is SectionIDMemory.
	MemorySection []*Memory

	// GlobalSection contains each global defined in this module, whose
	// index space begins after imported globals.
	//
	// Note: In the Binary Format, this is SectionIDGlobal.
	GlobalSection []*Global

	// ExportSection contains each export, in declaration order.
	//
	// Note: In the Binary Format, this is SectionIDExport.
	ExportSection []*Export

	// StartSection is the index of a no-argument function invoked at the
	// end of instantiation, or nil.
	//
	// Note: In the Binary Format, this is SectionIDStart.
	StartSection *Index

	// ElementSection initializes table slots at instantiation.
	//
	// Note: In the Binary Format, this is SectionIDElement.
	ElementSection []*ElementSegment

	// CodeSection is index-correlated with FunctionSection and contains
	// each function's locals and decoded body.
	//
	// Note: In the Binary Format, this is SectionIDCode.
	CodeSection []*Code

	// DataSection initializes linear memory at instantiation.
	//
	// Note: In the Binary Format, this is SectionIDData.
	DataSection []*DataSegment

	// CustomSections are retained uninterpreted, in order of appearance.
	CustomSections []*CustomSection
}

// ImportCount returns how many imports of the given kind the module has.
// Imported entities precede module-defined ones in every index space.
func (m *Module) ImportCount(et ExternType) (count uint32) {
	for _, im := range m.ImportSection {
		if im.Type == et {
			count++
		}
	}
	return
}

// TypeOfFunction returns the signature of the function at the given
// function-space index, or nil when the index is out of range.
func (m *Module) TypeOfFunction(funcIdx Index) *FunctionType {
	importCount := Index(0)
	for _, im := range m.ImportSection {
		if im.Type != ExternTypeFunc {
			continue
		}
		if funcIdx == importCount {
			if int(im.DescFunc) >= len(m.TypeSection) {
				return nil
			}
			return m.TypeSection[im.DescFunc]
		}
		importCount++
	}
	sectionIdx := funcIdx - importCount
	if sectionIdx >= uint32(len(m.FunctionSection)) {
		return nil
	}
	typeIdx := m.FunctionSection[sectionIdx]
	if int(typeIdx) >= len(m.TypeSection) {
		return nil
	}
	return m.TypeSection[typeIdx]
}

// funcCount returns the size of the function index space: imports first,
// then module-defined functions.
func (m *Module) funcCount() uint32 {
	return m.ImportCount(ExternTypeFunc) + uint32(len(m.FunctionSection))
}

func (m *Module) tableCount() uint32 {
	return m.ImportCount(ExternTypeTable) + uint32(len(m.TableSection))
}

func (m *Module) memoryCount() uint32 {
	return m.ImportCount(ExternTypeMemory) + uint32(len(m.MemorySection))
}

func (m *Module) globalCount() uint32 {
	return m.ImportCount(ExternTypeGlobal) + uint32(len(m.GlobalSection))
}

// ValidateIndices runs the cross-section checks performed when decoding
// finishes: every type, import, export, element, data and start index must
// lie within its index space, the function and code sections must agree,
// and export names must be unique per kind. Indices inside function bodies
// are checked by Validate, not here. A violation means no Module is
// produced.
func (m *Module) ValidateIndices() error {
	if len(m.FunctionSection) != len(m.CodeSection) {
		return errors.Wrapf(errcode.ErrMalformedBinary,
			"function section size %d disagrees with code section size %d",
			len(m.FunctionSection), len(m.CodeSection))
	}

	for i, typeIdx := range m.FunctionSection {
		if int(typeIdx) >= len(m.TypeSection) {
			return errors.Wrapf(errcode.ErrMalformedBinary, "function %d: unknown type %d", i, typeIdx)
		}
	}

	for i, im := range m.ImportSection {
		if im.Type == ExternTypeFunc && int(im.DescFunc) >= len(m.TypeSection) {
			return errors.Wrapf(errcode.ErrMalformedBinary, "import %d: unknown type %d", i, im.DescFunc)
		}
	}

	if m.tableCount() > 1 {
		return errors.Wrap(errcode.ErrMalformedBinary, "at most one table allowed")
	}
	if m.memoryCount() > 1 {
		return errors.Wrap(errcode.ErrMalformedBinary, "at most one memory allowed")
	}

	for i, g := range m.GlobalSection {
		if err := m.validateConstExpr(g.Init, i, "global"); err != nil {
			return err
		}
	}

	exported := map[ExternType]map[string]struct{}{}
	for _, exp := range m.ExportSection {
		var max uint32
		switch exp.Type {
		case ExternTypeFunc:
			max = m.funcCount()
		case ExternTypeTable:
			max = m.tableCount()
		case ExternTypeMemory:
			max = m.memoryCount()
		case ExternTypeGlobal:
			max = m.globalCount()
		}
		if exp.Index >= max {
			return errors.Wrapf(errcode.ErrMalformedBinary,
				"export %q: unknown %s %d", exp.Name, ExternTypeName(exp.Type), exp.Index)
		}
		names := exported[exp.Type]
		if names == nil {
			names = map[string]struct{}{}
			exported[exp.Type] = names
		}
		if _, ok := names[exp.Name]; ok {
			return errors.Wrapf(errcode.ErrMalformedBinary,
				"%s %q exported more than once", ExternTypeName(exp.Type), exp.Name)
		}
		names[exp.Name] = struct{}{}
	}

	for i, elem := range m.ElementSection {
		if elem.TableIndex >= m.tableCount() {
			return errors.Wrapf(errcode.ErrMalformedBinary, "element segment %d: unknown table %d", i, elem.TableIndex)
		}
		if err := m.validateConstExpr(elem.OffsetExpr, i, "element segment"); err != nil {
			return err
		}
		for _, fidx := range elem.Init {
			if fidx >= m.funcCount() {
				return errors.Wrapf(errcode.ErrMalformedBinary, "element segment %d: unknown function %d", i, fidx)
			}
		}
	}

	for i, data := range m.DataSection {
		if data.MemoryIndex >= m.memoryCount() {
			return errors.Wrapf(errcode.ErrMalformedBinary, "data segment %d: unknown memory %d", i, data.MemoryIndex)
		}
		if err := m.validateConstExpr(data.OffsetExpr, i, "data segment"); err != nil {
			return err
		}
	}

	if m.StartSection != nil && *m.StartSection >= m.funcCount() {
		return errors.Wrapf(errcode.ErrMalformedBinary, "unknown start function %d", *m.StartSection)
	}
	return nil
}

// validateConstExpr checks a global.get initializer refers to an imported
// global; const opcodes need no cross-section check.
func (m *Module) validateConstExpr(expr *ConstantExpression, i int, what string) error {
	if expr.Opcode != OpcodeGlobalGet {
		return nil
	}
	if expr.GlobalIndex >= m.ImportCount(ExternTypeGlobal) {
		return errors.Wrapf(errcode.ErrConstExprRequired,
			"%s %d: global.get %d does not refer to an imported global", what, i, expr.GlobalIndex)
	}
	return nil
}

// SectionID identifies the sections of a Module in the WebAssembly 1.0
// (20191205) Binary Format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
type SectionID = byte

const (
	// SectionIDCustom may appear anywhere and is retained uninterpreted.
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
)

// SectionIDName returns the canonical name of a module section.
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return fmt.Sprintf("unknown(%d)", sectionID)
}
