package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeCode decodes one size-prefixed code entry: the declared locals
// followed by the function body, which must consume the declared size
// exactly.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-code
func decodeCode(r *binreader.Reader) (*wasm.Code, error) {
	size, err := r.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "code size")
	}
	body, err := r.Sub(size)
	if err != nil {
		return nil, err
	}

	declCount, err := body.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "local declaration count")
	}
	var localTypes []wasm.ValueType
	var totalLocals uint64
	for i := uint32(0); i < declCount; i++ {
		n, err := body.ReadU32()
		if err != nil {
			return nil, errors.WithMessage(err, "local group count")
		}
		totalLocals += uint64(n)
		// A group count can demand gigabytes before any byte of the body is
		// read; no real function comes near this many locals.
		if totalLocals > 1<<27 {
			return nil, errors.Wrap(errcode.ErrMalformedBinary, "too many locals")
		}
		ts, err := decodeValueTypes(body, 1)
		if err != nil {
			return nil, errors.WithMessage(err, "local type")
		}
		for j := uint32(0); j < n; j++ {
			localTypes = append(localTypes, ts[0])
		}
	}

	instrs, term, err := decodeInstructionSequence(body)
	if err != nil {
		return nil, err
	}
	if term != wasm.OpcodeEnd {
		return nil, errors.Wrap(errcode.ErrMalformedBinary, "function body not terminated by end")
	}
	if err := body.Finish(); err != nil {
		return nil, err
	}
	return &wasm.Code{LocalTypes: localTypes, Body: instrs}, nil
}

// decodeInstructionSequence decodes instructions until a terminating end or
// else opcode, returning the terminator so if-bodies can tell them apart.
// Block, loop and if recursively consume their own bodies.
func decodeInstructionSequence(r *binreader.Reader) (instrs []wasm.Instruction, terminator wasm.Opcode, err error) {
	for {
		offset := r.Tell()
		op, err := r.ReadByte()
		if err != nil {
			return nil, 0, err
		}

		switch op {
		case wasm.OpcodeEnd, wasm.OpcodeElse:
			return instrs, op, nil
		}

		instr := wasm.Instruction{Opcode: op}
		switch op {
		case wasm.OpcodeUnreachable, wasm.OpcodeNop, wasm.OpcodeReturn,
			wasm.OpcodeDrop, wasm.OpcodeSelect:
			// no immediates

		case wasm.OpcodeBlock, wasm.OpcodeLoop:
			if instr.BlockType, err = decodeBlockType(r); err != nil {
				return nil, 0, err
			}
			var term wasm.Opcode
			if instr.Body, term, err = decodeInstructionSequence(r); err != nil {
				return nil, 0, err
			}
			if term != wasm.OpcodeEnd {
				return nil, 0, errors.Wrapf(errcode.ErrMalformedBinary,
					"%s terminated by else", wasm.InstructionName(op))
			}

		case wasm.OpcodeIf:
			if instr.BlockType, err = decodeBlockType(r); err != nil {
				return nil, 0, err
			}
			var term wasm.Opcode
			if instr.Body, term, err = decodeInstructionSequence(r); err != nil {
				return nil, 0, err
			}
			if term == wasm.OpcodeElse {
				if instr.ElseBody, term, err = decodeInstructionSequence(r); err != nil {
					return nil, 0, err
				}
				if term != wasm.OpcodeEnd {
					return nil, 0, errors.Wrap(errcode.ErrMalformedBinary, "if with a second else")
				}
			}

		case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
			wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
			wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
			if instr.Index, err = r.ReadU32(); err != nil {
				return nil, 0, errors.WithMessagef(err, "%s index", wasm.InstructionName(op))
			}

		case wasm.OpcodeBrTable:
			count, err := r.ReadU32()
			if err != nil {
				return nil, 0, errors.WithMessage(err, "br_table label count")
			}
			// Each label is at least one byte.
			if uint64(count) > uint64(r.Len()) {
				return nil, 0, errors.WithMessage(errcode.ErrUnexpectedEnd, "br_table label count")
			}
			instr.Labels = make([]wasm.Index, count)
			for i := range instr.Labels {
				if instr.Labels[i], err = r.ReadU32(); err != nil {
					return nil, 0, errors.WithMessage(err, "br_table label")
				}
			}
			if instr.Index, err = r.ReadU32(); err != nil {
				return nil, 0, errors.WithMessage(err, "br_table default label")
			}

		case wasm.OpcodeCallIndirect:
			if instr.Index, err = r.ReadU32(); err != nil {
				return nil, 0, errors.WithMessage(err, "call_indirect type index")
			}
			// The table index is fixed to zero in WebAssembly 1.0 (20191205).
			b, err := r.ReadByte()
			if err != nil {
				return nil, 0, err
			}
			if b != 0x00 {
				return nil, 0, errors.Wrapf(errcode.ErrMalformedBinary, "call_indirect reserved byte %#x", b)
			}

		case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
			b, err := r.ReadByte()
			if err != nil {
				return nil, 0, err
			}
			if b != 0x00 {
				return nil, 0, errors.Wrapf(errcode.ErrMalformedBinary,
					"%s reserved byte %#x", wasm.InstructionName(op), b)
			}

		case wasm.OpcodeI32Const:
			v, err := r.ReadS32()
			if err != nil {
				return nil, 0, errors.WithMessage(err, "i32.const value")
			}
			instr.Val = api.I32(v)
		case wasm.OpcodeI64Const:
			v, err := r.ReadS64()
			if err != nil {
				return nil, 0, errors.WithMessage(err, "i64.const value")
			}
			instr.Val = api.I64(v)
		case wasm.OpcodeF32Const:
			v, err := r.ReadF32()
			if err != nil {
				return nil, 0, errors.WithMessage(err, "f32.const value")
			}
			instr.Val = api.F32(v)
		case wasm.OpcodeF64Const:
			v, err := r.ReadF64()
			if err != nil {
				return nil, 0, errors.WithMessage(err, "f64.const value")
			}
			instr.Val = api.F64(v)

		default:
			if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
				if instr.Align, err = r.ReadU32(); err != nil {
					return nil, 0, errors.WithMessagef(err, "%s alignment", wasm.InstructionName(op))
				}
				if instr.Offset, err = r.ReadU32(); err != nil {
					return nil, 0, errors.WithMessagef(err, "%s offset", wasm.InstructionName(op))
				}
			} else if op >= wasm.OpcodeI32Eqz && op <= wasm.OpcodeF64ReinterpretI64 {
				// numeric and conversion opcodes carry no immediates
			} else {
				return nil, 0, errcode.WithOffset(
					errors.Wrapf(errcode.ErrUnknownOpcode, "%#x", op), offset)
			}
		}
		instrs = append(instrs, instr)
	}
}

// decodeBlockType reads a block signature: 0x40 for no result or a single
// value type. Type-section indices belong to multi-value, which WebAssembly
// 1.0 (20191205) doesn't have.
func decodeBlockType(r *binreader.Reader) (byte, error) {
	v, err := r.ReadS33()
	if err != nil {
		return 0, err
	}
	switch v {
	case -64: // 0x40 in the 7-bit signed encoding
		return wasm.BlockTypeEmpty, nil
	case -1:
		return wasm.ValueTypeI32, nil
	case -2:
		return wasm.ValueTypeI64, nil
	case -3:
		return wasm.ValueTypeF32, nil
	case -4:
		return wasm.ValueTypeF64, nil
	default:
		return 0, errors.Wrapf(errcode.ErrMalformedBinary, "invalid block signature %d", v)
	}
}
