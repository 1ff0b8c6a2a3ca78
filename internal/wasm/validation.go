package wasm

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/errcode"
)

// Validate performs the static well-formedness checks that don't require
// executing the module: section count agreement, limits form, index bounds
// for calls and variable access, and branch label depth. Full operand-stack
// type checking is deliberately not performed; the interpreter's runtime
// traps catch what remains.
func (m *Module) Validate() error {
	if len(m.FunctionSection) != len(m.CodeSection) {
		return errors.Wrapf(errcode.ErrValidationFailed,
			"function section size %d disagrees with code section size %d",
			len(m.FunctionSection), len(m.CodeSection))
	}

	for i, t := range m.TableSection {
		if err := validateLimits(t.Limit.Min, t.Limit.Max); err != nil {
			return errors.Wrapf(err, "table %d", i)
		}
	}
	for _, im := range m.ImportSection {
		if im.Type == ExternTypeTable {
			if err := validateLimits(im.DescTable.Limit.Min, im.DescTable.Limit.Max); err != nil {
				return errors.Wrapf(err, "table import %s.%s", im.Module, im.Name)
			}
		}
	}
	for i, mem := range m.MemorySection {
		if err := validateMemory(mem); err != nil {
			return errors.Wrapf(err, "memory %d", i)
		}
	}
	for _, im := range m.ImportSection {
		if im.Type == ExternTypeMemory {
			if err := validateMemory(im.DescMem); err != nil {
				return errors.Wrapf(err, "memory import %s.%s", im.Module, im.Name)
			}
		}
	}

	if m.StartSection != nil {
		ft := m.TypeOfFunction(*m.StartSection)
		if ft == nil {
			return errors.Wrapf(errcode.ErrValidationFailed, "unknown start function %d", *m.StartSection)
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return errors.Wrap(errcode.ErrValidationFailed, "start function must have an empty signature")
		}
	}

	importedFuncs := m.ImportCount(ExternTypeFunc)
	for i, code := range m.CodeSection {
		typeIdx := m.FunctionSection[i]
		if int(typeIdx) >= len(m.TypeSection) {
			return errors.Wrapf(errcode.ErrValidationFailed, "function %d: unknown type %d", i, typeIdx)
		}
		ft := m.TypeSection[typeIdx]
		localCount := uint32(len(ft.Params) + len(code.LocalTypes))
		if err := m.validateBody(code.Body, 1, localCount); err != nil {
			return errors.Wrapf(err, "function %d", int(importedFuncs)+i)
		}
	}
	return nil
}

func validateLimits(min uint32, max *uint32) error {
	if max != nil && *max < min {
		return errors.Wrapf(errcode.ErrValidationFailed, "min %d is greater than max %d", min, *max)
	}
	return nil
}

func validateMemory(mem *Memory) error {
	if mem.Min > MemoryMaxPages || mem.Max > MemoryMaxPages {
		return errors.Wrapf(errcode.ErrValidationFailed, "memory size must be at most %d pages", MemoryMaxPages)
	}
	if mem.Max < mem.Min {
		return errors.Wrapf(errcode.ErrValidationFailed, "min %d pages is greater than max %d pages", mem.Min, mem.Max)
	}
	return nil
}

// validateBody walks an instruction forest checking label depth and index
// bounds. depth counts the enclosing labels including the implicit function
// label, so a top-level "br 0" is valid and "br 1" is not.
func (m *Module) validateBody(body []Instruction, depth uint32, localCount uint32) error {
	for i := range body {
		instr := &body[i]
		switch instr.Opcode {
		case OpcodeBlock, OpcodeLoop:
			if err := m.validateBody(instr.Body, depth+1, localCount); err != nil {
				return err
			}
		case OpcodeIf:
			if err := m.validateBody(instr.Body, depth+1, localCount); err != nil {
				return err
			}
			if err := m.validateBody(instr.ElseBody, depth+1, localCount); err != nil {
				return err
			}
		case OpcodeBr, OpcodeBrIf:
			if instr.Index >= depth {
				return errors.Wrapf(errcode.ErrValidationFailed,
					"%s depth %d exceeds label depth %d", InstructionName(instr.Opcode), instr.Index, depth)
			}
		case OpcodeBrTable:
			for _, l := range instr.Labels {
				if l >= depth {
					return errors.Wrapf(errcode.ErrValidationFailed,
						"br_table depth %d exceeds label depth %d", l, depth)
				}
			}
			if instr.Index >= depth {
				return errors.Wrapf(errcode.ErrValidationFailed,
					"br_table default depth %d exceeds label depth %d", instr.Index, depth)
			}
		case OpcodeCall:
			if instr.Index >= m.funcCount() {
				return errors.Wrapf(errcode.ErrValidationFailed, "call of unknown function %d", instr.Index)
			}
		case OpcodeCallIndirect:
			if int(instr.Index) >= len(m.TypeSection) {
				return errors.Wrapf(errcode.ErrValidationFailed, "call_indirect with unknown type %d", instr.Index)
			}
			if m.tableCount() == 0 {
				return errors.Wrap(errcode.ErrValidationFailed, "call_indirect without a table")
			}
		case OpcodeLocalGet, OpcodeLocalSet, OpcodeLocalTee:
			if instr.Index >= localCount {
				return errors.Wrapf(errcode.ErrValidationFailed,
					"%s of unknown local %d", InstructionName(instr.Opcode), instr.Index)
			}
		case OpcodeGlobalGet, OpcodeGlobalSet:
			if instr.Index >= m.globalCount() {
				return errors.Wrapf(errcode.ErrValidationFailed,
					"%s of unknown global %d", InstructionName(instr.Opcode), instr.Index)
			}
		case OpcodeMemorySize, OpcodeMemoryGrow:
			if m.memoryCount() == 0 {
				return errors.Wrapf(errcode.ErrValidationFailed,
					"%s without a memory", InstructionName(instr.Opcode))
			}
		default:
			if instr.Opcode >= OpcodeI32Load && instr.Opcode <= OpcodeI64Store32 && m.memoryCount() == 0 {
				return errors.Wrapf(errcode.ErrValidationFailed,
					"%s without a memory", InstructionName(instr.Opcode))
			}
		}
	}
	return nil
}
