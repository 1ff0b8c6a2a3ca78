package interpreter

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// execMemory dispatches the load and store opcodes. The effective address
// is the popped i32 base plus the static offset, computed in 64-bit
// arithmetic so the 33-bit sum can't wrap; an access past the buffer traps
// with ErrMemoryOutOfBounds before any byte is written. The alignment hint
// is advisory and ignored.
func (it *Interpreter) execMemory(frame *callFrame, instr *wasm.Instruction) error {
	mem := frame.memory
	if mem == nil {
		return errors.Wrapf(errcode.ErrValidationFailed,
			"%s without a memory", wasm.InstructionName(instr.Opcode))
	}

	op := instr.Opcode
	isStore := op >= wasm.OpcodeI32Store
	var val wasm.Value
	if isStore {
		val = it.pop()
	}
	base := uint32(it.pop().Raw)
	ea := uint64(base) + uint64(instr.Offset)

	size := accessSize(op)
	if ea+uint64(size) > uint64(len(mem.Buffer)) {
		return errors.Wrapf(errcode.ErrMemoryOutOfBounds,
			"%s: effective address %d + %d bytes > memory length %d",
			wasm.InstructionName(op), ea, size, len(mem.Buffer))
	}
	buf := mem.Buffer[ea:]

	switch op {
	case wasm.OpcodeI32Load:
		it.push(api.I32(int32(binary.LittleEndian.Uint32(buf))))
	case wasm.OpcodeI64Load:
		it.push(api.I64(int64(binary.LittleEndian.Uint64(buf))))
	case wasm.OpcodeF32Load:
		it.push(wasm.Value{Type: wasm.ValueTypeF32, Raw: uint64(binary.LittleEndian.Uint32(buf))})
	case wasm.OpcodeF64Load:
		it.push(wasm.Value{Type: wasm.ValueTypeF64, Raw: binary.LittleEndian.Uint64(buf)})
	case wasm.OpcodeI32Load8S:
		it.push(api.I32(int32(int8(buf[0]))))
	case wasm.OpcodeI32Load8U:
		it.push(api.I32(int32(uint32(buf[0]))))
	case wasm.OpcodeI32Load16S:
		it.push(api.I32(int32(int16(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpcodeI32Load16U:
		it.push(api.I32(int32(uint32(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpcodeI64Load8S:
		it.push(api.I64(int64(int8(buf[0]))))
	case wasm.OpcodeI64Load8U:
		it.push(api.I64(int64(uint64(buf[0]))))
	case wasm.OpcodeI64Load16S:
		it.push(api.I64(int64(int16(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpcodeI64Load16U:
		it.push(api.I64(int64(uint64(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpcodeI64Load32S:
		it.push(api.I64(int64(int32(binary.LittleEndian.Uint32(buf)))))
	case wasm.OpcodeI64Load32U:
		it.push(api.I64(int64(uint64(binary.LittleEndian.Uint32(buf)))))

	case wasm.OpcodeI32Store, wasm.OpcodeF32Store:
		binary.LittleEndian.PutUint32(buf, uint32(val.Raw))
	case wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		binary.LittleEndian.PutUint64(buf, val.Raw)
	case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		buf[0] = byte(val.Raw)
	case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		binary.LittleEndian.PutUint16(buf, uint16(val.Raw))
	case wasm.OpcodeI64Store32:
		binary.LittleEndian.PutUint32(buf, uint32(val.Raw))
	}
	return nil
}

// accessSize returns the byte width a load or store touches.
func accessSize(op wasm.Opcode) uint32 {
	switch op {
	case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U,
		wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		return 1
	case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		return 2
	case wasm.OpcodeI32Load, wasm.OpcodeF32Load, wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeF32Store, wasm.OpcodeI64Store32:
		return 4
	default: // i64.load, f64.load, i64.store, f64.store
		return 8
	}
}
