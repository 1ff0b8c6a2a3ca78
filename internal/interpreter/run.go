package interpreter

import (
	"math"

	"github.com/pkg/errors"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/store"
	"github.com/zenovm/zeno/internal/wasm"
)

// branchReturn is the branch signal of the return instruction: it unwinds
// through every enclosing label to the function boundary.
const branchReturn = math.MaxInt32

// runProtected runs a function converting any Go panic (possible only on
// code that skipped validation and broke the stack discipline) into a trap.
func (it *Interpreter) runProtected(s *store.StoreManager, f *store.FunctionInstance) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.Wrapf(errcode.ErrValidationFailed, "wasm runtime panic: %v", v)
		}
	}()
	return it.callFunction(s, f)
}

// callFunction invokes a function instance: a trampoline for host
// functions, a new call frame and body execution for wasm functions. The
// callee's arguments are on the operand stack in declaration order.
func (it *Interpreter) callFunction(s *store.StoreManager, f *store.FunctionInstance) error {
	if len(it.frames) >= it.callDepthCeiling {
		return errcode.ErrCallStackExhausted
	}
	if f.IsHost() {
		return it.callHostFunction(s, f)
	}

	locals := make([]wasm.Value, 0, len(f.Type.Params)+len(f.LocalTypes))
	locals = append(locals, it.popN(len(f.Type.Params))...)
	for _, lt := range f.LocalTypes {
		locals = append(locals, api.ZeroValue(lt))
	}

	module, err := s.GetModule(f.Owner)
	if err != nil {
		return err
	}
	frame := &callFrame{module: module, locals: locals, base: len(it.stack)}
	if len(module.MemAddrs) > 0 {
		if frame.memory, err = s.GetMemory(module.MemAddrs[0]); err != nil {
			return err
		}
	}
	if len(module.TableAddrs) > 0 {
		if frame.table, err = s.GetTable(module.TableAddrs[0]); err != nil {
			return err
		}
	}

	it.frames = append(it.frames, frame)
	if _, err := it.execSeq(s, frame, f.Body); err != nil {
		return err
	}

	// Fall-through, br to the function label, and return all end up here:
	// the results sit on top; everything else above the frame base goes.
	arity := len(f.Type.Results)
	if len(it.stack)-frame.base < arity {
		return errors.Wrap(errcode.ErrTypeMismatch, "function body left too few results")
	}
	results := it.popN(arity)
	it.truncate(frame.base)
	for _, v := range results {
		it.push(v)
	}
	it.frames = it.frames[:len(it.frames)-1]
	return nil
}

// callHostFunction pops the arguments, resolves the calling frame's memory,
// and trampolines into the embedder's callable. A host error propagates
// exactly like an interpreter trap.
func (it *Interpreter) callHostFunction(s *store.StoreManager, f *store.FunctionInstance) error {
	args := it.popN(len(f.Type.Params))

	// The host sees the memory of the importing (calling) module. When
	// invoked directly with no wasm frame below, the host module's own
	// memory applies, if it has one.
	var mem api.Memory
	if len(it.frames) > 0 {
		if m := it.frames[len(it.frames)-1].memory; m != nil {
			mem = m
		}
	} else if module, err := s.GetModule(f.Owner); err == nil && len(module.MemAddrs) > 0 {
		if m, err := s.GetMemory(module.MemAddrs[0]); err == nil {
			mem = m
		}
	}

	results, err := f.HostFn.Call(mem, args)
	if err != nil {
		return err
	}
	if len(results) != len(f.Type.Results) {
		return errors.Wrapf(errcode.ErrTypeMismatch,
			"host function %s returned %d results, signature has %d", f.Name, len(results), len(f.Type.Results))
	}
	for i, v := range results {
		if v.Type != f.Type.Results[i] {
			return errors.Wrapf(errcode.ErrTypeMismatch,
				"host function %s result %d is %s, signature says %s",
				f.Name, i, wasm.ValueTypeName(v.Type), wasm.ValueTypeName(f.Type.Results[i]))
		}
		it.push(v)
	}
	return nil
}

// execSeq runs one instruction sequence. The int result is the branch
// signal: 0 after falling off the end, n > 0 when a branch targets the n-th
// enclosing label (1 is the innermost), branchReturn for return.
func (it *Interpreter) execSeq(s *store.StoreManager, frame *callFrame, body []wasm.Instruction) (int, error) {
	for pc := 0; pc < len(body); pc++ {
		instr := &body[pc]

		if it.tick != nil && it.tick() {
			return 0, errcode.ErrInterrupted
		}

		switch op := instr.Opcode; op {
		case wasm.OpcodeNop:

		case wasm.OpcodeUnreachable:
			return 0, errcode.ErrUnreachable

		case wasm.OpcodeBlock:
			br, err := it.execBlock(s, frame, instr.Body, wasm.BlockArity(instr.BlockType))
			if err != nil {
				return 0, err
			}
			if br != 0 {
				return br, nil
			}

		case wasm.OpcodeLoop:
			height := len(it.stack)
			for {
				br, err := it.execSeq(s, frame, instr.Body)
				if err != nil {
					return 0, err
				}
				if br == 0 {
					break
				}
				if br == 1 {
					// A branch to a loop label re-enters the loop body.
					it.truncate(height)
					continue
				}
				if br == branchReturn {
					return branchReturn, nil
				}
				return br - 1, nil
			}

		case wasm.OpcodeIf:
			cond := uint32(it.pop().Raw)
			chosen := instr.Body
			if cond == 0 {
				chosen = instr.ElseBody
			}
			br, err := it.execBlock(s, frame, chosen, wasm.BlockArity(instr.BlockType))
			if err != nil {
				return 0, err
			}
			if br != 0 {
				return br, nil
			}

		case wasm.OpcodeBr:
			return int(instr.Index) + 1, nil

		case wasm.OpcodeBrIf:
			if uint32(it.pop().Raw) != 0 {
				return int(instr.Index) + 1, nil
			}

		case wasm.OpcodeBrTable:
			idx := uint32(it.pop().Raw)
			if uint64(idx) < uint64(len(instr.Labels)) {
				return int(instr.Labels[idx]) + 1, nil
			}
			return int(instr.Index) + 1, nil

		case wasm.OpcodeReturn:
			return branchReturn, nil

		case wasm.OpcodeCall:
			if int(instr.Index) >= len(frame.module.FuncAddrs) {
				return 0, errors.Wrapf(errcode.ErrValidationFailed, "call of unknown function %d", instr.Index)
			}
			f, err := s.GetFunction(frame.module.FuncAddrs[instr.Index])
			if err != nil {
				return 0, err
			}
			if err := it.callFunction(s, f); err != nil {
				return 0, err
			}

		case wasm.OpcodeCallIndirect:
			if err := it.callIndirect(s, frame, instr); err != nil {
				return 0, err
			}

		case wasm.OpcodeDrop:
			it.pop()

		case wasm.OpcodeSelect:
			cond := uint32(it.pop().Raw)
			v2, v1 := it.pop(), it.pop()
			if v1.Type != v2.Type {
				return 0, errors.Wrapf(errcode.ErrTypeMismatch,
					"select operands %s and %s", wasm.ValueTypeName(v1.Type), wasm.ValueTypeName(v2.Type))
			}
			if cond != 0 {
				it.push(v1)
			} else {
				it.push(v2)
			}

		case wasm.OpcodeLocalGet:
			if int(instr.Index) >= len(frame.locals) {
				return 0, errors.Wrapf(errcode.ErrValidationFailed, "local.get %d", instr.Index)
			}
			it.push(frame.locals[instr.Index])

		case wasm.OpcodeLocalSet:
			if int(instr.Index) >= len(frame.locals) {
				return 0, errors.Wrapf(errcode.ErrValidationFailed, "local.set %d", instr.Index)
			}
			frame.locals[instr.Index] = it.pop()

		case wasm.OpcodeLocalTee:
			if int(instr.Index) >= len(frame.locals) {
				return 0, errors.Wrapf(errcode.ErrValidationFailed, "local.tee %d", instr.Index)
			}
			frame.locals[instr.Index] = it.stack[len(it.stack)-1]

		case wasm.OpcodeGlobalGet:
			g, err := it.globalAt(s, frame, instr.Index)
			if err != nil {
				return 0, err
			}
			it.push(g.Val)

		case wasm.OpcodeGlobalSet:
			g, err := it.globalAt(s, frame, instr.Index)
			if err != nil {
				return 0, err
			}
			if err := g.Set(it.pop()); err != nil {
				return 0, err
			}

		case wasm.OpcodeMemorySize:
			if frame.memory == nil {
				return 0, errors.Wrap(errcode.ErrValidationFailed, "memory.size without a memory")
			}
			it.push(api.I32(int32(frame.memory.PageSize())))

		case wasm.OpcodeMemoryGrow:
			if frame.memory == nil {
				return 0, errors.Wrap(errcode.ErrValidationFailed, "memory.grow without a memory")
			}
			delta := uint32(it.pop().Raw)
			it.push(api.I32(int32(frame.memory.Grow(delta))))

		case wasm.OpcodeI32Const, wasm.OpcodeI64Const, wasm.OpcodeF32Const, wasm.OpcodeF64Const:
			it.push(instr.Val)

		default:
			if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
				if err := it.execMemory(frame, instr); err != nil {
					return 0, err
				}
			} else if err := it.execNumeric(instr); err != nil {
				return 0, err
			}
		}
	}
	return 0, nil
}

// execBlock runs a block or if body under a fresh label: the operand-stack
// height is snapshotted on entry, and both fall-through and a branch
// targeting this label restore the stack to that height plus the label's
// result arity.
func (it *Interpreter) execBlock(s *store.StoreManager, frame *callFrame, body []wasm.Instruction, arity int) (int, error) {
	height := len(it.stack)
	br, err := it.execSeq(s, frame, body)
	if err != nil {
		return 0, err
	}
	switch {
	case br == branchReturn:
		return branchReturn, nil
	case br > 1:
		return br - 1, nil
	}

	// br == 0 or br == 1: this label is the continuation; carry its arity.
	if len(it.stack) < height+arity {
		return 0, errors.Wrap(errcode.ErrTypeMismatch, "block left too few results")
	}
	results := it.popN(arity)
	it.truncate(height)
	for _, v := range results {
		it.push(v)
	}
	return 0, nil
}

func (it *Interpreter) callIndirect(s *store.StoreManager, frame *callFrame, instr *wasm.Instruction) error {
	if frame.table == nil {
		return errors.Wrap(errcode.ErrValidationFailed, "call_indirect without a table")
	}
	if int(instr.Index) >= len(frame.module.TypeIDs) {
		return errors.Wrapf(errcode.ErrValidationFailed, "call_indirect type %d", instr.Index)
	}

	idx := uint32(it.pop().Raw)
	if uint64(idx) >= uint64(frame.table.Len()) {
		return errors.Wrapf(errcode.ErrUndefinedElement, "table index %d beyond length %d", idx, frame.table.Len())
	}
	elem := frame.table.Elements[idx]
	if elem.TypeID == store.UninitializedTypeID {
		return errors.Wrapf(errcode.ErrUninitializedElement, "table index %d", idx)
	}
	if elem.TypeID != frame.module.TypeIDs[instr.Index] {
		return errors.Wrapf(errcode.ErrIndirectCallTypeMismatch, "table index %d", idx)
	}

	f, err := s.GetFunction(elem.FunctionAddr)
	if err != nil {
		return err
	}
	return it.callFunction(s, f)
}

func (it *Interpreter) globalAt(s *store.StoreManager, frame *callFrame, idx wasm.Index) (*store.GlobalInstance, error) {
	if int(idx) >= len(frame.module.GlobalAddrs) {
		return nil, errors.Wrapf(errcode.ErrValidationFailed, "unknown global %d", idx)
	}
	return s.GetGlobal(frame.module.GlobalAddrs[idx])
}
