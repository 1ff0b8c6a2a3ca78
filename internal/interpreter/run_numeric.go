package interpreter

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/moremath"
	"github.com/zenovm/zeno/internal/wasm"
)

func boolValue(b bool) wasm.Value {
	if b {
		return api.I32(1)
	}
	return api.I32(0)
}

// execNumeric dispatches the numeric and conversion opcodes with exact Wasm
// semantics: two's-complement integer arithmetic, IEEE-754 floats with NaN
// results canonicalized, and the trap conditions of div/rem and the trunc
// family.
func (it *Interpreter) execNumeric(instr *wasm.Instruction) error {
	op := instr.Opcode
	switch op {
	// i32 tests and comparisons
	case wasm.OpcodeI32Eqz:
		it.push(boolValue(uint32(it.pop().Raw) == 0))
	case wasm.OpcodeI32Eq, wasm.OpcodeI32Ne, wasm.OpcodeI32LtS, wasm.OpcodeI32LtU,
		wasm.OpcodeI32GtS, wasm.OpcodeI32GtU, wasm.OpcodeI32LeS, wasm.OpcodeI32LeU,
		wasm.OpcodeI32GeS, wasm.OpcodeI32GeU:
		v2, v1 := uint32(it.pop().Raw), uint32(it.pop().Raw)
		var b bool
		switch op {
		case wasm.OpcodeI32Eq:
			b = v1 == v2
		case wasm.OpcodeI32Ne:
			b = v1 != v2
		case wasm.OpcodeI32LtS:
			b = int32(v1) < int32(v2)
		case wasm.OpcodeI32LtU:
			b = v1 < v2
		case wasm.OpcodeI32GtS:
			b = int32(v1) > int32(v2)
		case wasm.OpcodeI32GtU:
			b = v1 > v2
		case wasm.OpcodeI32LeS:
			b = int32(v1) <= int32(v2)
		case wasm.OpcodeI32LeU:
			b = v1 <= v2
		case wasm.OpcodeI32GeS:
			b = int32(v1) >= int32(v2)
		case wasm.OpcodeI32GeU:
			b = v1 >= v2
		}
		it.push(boolValue(b))

	// i64 tests and comparisons
	case wasm.OpcodeI64Eqz:
		it.push(boolValue(it.pop().Raw == 0))
	case wasm.OpcodeI64Eq, wasm.OpcodeI64Ne, wasm.OpcodeI64LtS, wasm.OpcodeI64LtU,
		wasm.OpcodeI64GtS, wasm.OpcodeI64GtU, wasm.OpcodeI64LeS, wasm.OpcodeI64LeU,
		wasm.OpcodeI64GeS, wasm.OpcodeI64GeU:
		v2, v1 := it.pop().Raw, it.pop().Raw
		var b bool
		switch op {
		case wasm.OpcodeI64Eq:
			b = v1 == v2
		case wasm.OpcodeI64Ne:
			b = v1 != v2
		case wasm.OpcodeI64LtS:
			b = int64(v1) < int64(v2)
		case wasm.OpcodeI64LtU:
			b = v1 < v2
		case wasm.OpcodeI64GtS:
			b = int64(v1) > int64(v2)
		case wasm.OpcodeI64GtU:
			b = v1 > v2
		case wasm.OpcodeI64LeS:
			b = int64(v1) <= int64(v2)
		case wasm.OpcodeI64LeU:
			b = v1 <= v2
		case wasm.OpcodeI64GeS:
			b = int64(v1) >= int64(v2)
		case wasm.OpcodeI64GeU:
			b = v1 >= v2
		}
		it.push(boolValue(b))

	// f32 comparisons: IEEE, so NaN compares false except ne
	case wasm.OpcodeF32Eq, wasm.OpcodeF32Ne, wasm.OpcodeF32Lt, wasm.OpcodeF32Gt,
		wasm.OpcodeF32Le, wasm.OpcodeF32Ge:
		v2, v1 := it.pop().AsF32(), it.pop().AsF32()
		var b bool
		switch op {
		case wasm.OpcodeF32Eq:
			b = v1 == v2
		case wasm.OpcodeF32Ne:
			b = v1 != v2
		case wasm.OpcodeF32Lt:
			b = v1 < v2
		case wasm.OpcodeF32Gt:
			b = v1 > v2
		case wasm.OpcodeF32Le:
			b = v1 <= v2
		case wasm.OpcodeF32Ge:
			b = v1 >= v2
		}
		it.push(boolValue(b))

	case wasm.OpcodeF64Eq, wasm.OpcodeF64Ne, wasm.OpcodeF64Lt, wasm.OpcodeF64Gt,
		wasm.OpcodeF64Le, wasm.OpcodeF64Ge:
		v2, v1 := it.pop().AsF64(), it.pop().AsF64()
		var b bool
		switch op {
		case wasm.OpcodeF64Eq:
			b = v1 == v2
		case wasm.OpcodeF64Ne:
			b = v1 != v2
		case wasm.OpcodeF64Lt:
			b = v1 < v2
		case wasm.OpcodeF64Gt:
			b = v1 > v2
		case wasm.OpcodeF64Le:
			b = v1 <= v2
		case wasm.OpcodeF64Ge:
			b = v1 >= v2
		}
		it.push(boolValue(b))

	// i32 unary
	case wasm.OpcodeI32Clz:
		it.push(api.I32(int32(bits.LeadingZeros32(uint32(it.pop().Raw)))))
	case wasm.OpcodeI32Ctz:
		it.push(api.I32(int32(bits.TrailingZeros32(uint32(it.pop().Raw)))))
	case wasm.OpcodeI32Popcnt:
		it.push(api.I32(int32(bits.OnesCount32(uint32(it.pop().Raw)))))

	// i32 binary
	case wasm.OpcodeI32Add, wasm.OpcodeI32Sub, wasm.OpcodeI32Mul,
		wasm.OpcodeI32And, wasm.OpcodeI32Or, wasm.OpcodeI32Xor,
		wasm.OpcodeI32Shl, wasm.OpcodeI32ShrS, wasm.OpcodeI32ShrU,
		wasm.OpcodeI32Rotl, wasm.OpcodeI32Rotr:
		v2, v1 := uint32(it.pop().Raw), uint32(it.pop().Raw)
		var v uint32
		switch op {
		case wasm.OpcodeI32Add:
			v = v1 + v2
		case wasm.OpcodeI32Sub:
			v = v1 - v2
		case wasm.OpcodeI32Mul:
			v = v1 * v2
		case wasm.OpcodeI32And:
			v = v1 & v2
		case wasm.OpcodeI32Or:
			v = v1 | v2
		case wasm.OpcodeI32Xor:
			v = v1 ^ v2
		case wasm.OpcodeI32Shl:
			v = v1 << (v2 % 32)
		case wasm.OpcodeI32ShrS:
			v = uint32(int32(v1) >> (v2 % 32))
		case wasm.OpcodeI32ShrU:
			v = v1 >> (v2 % 32)
		case wasm.OpcodeI32Rotl:
			v = bits.RotateLeft32(v1, int(v2))
		case wasm.OpcodeI32Rotr:
			v = bits.RotateLeft32(v1, -int(v2))
		}
		it.push(api.I32(int32(v)))

	case wasm.OpcodeI32DivS:
		v2, v1 := int32(it.pop().Raw), int32(it.pop().Raw)
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		if v1 == math.MinInt32 && v2 == -1 {
			return errcode.WithOpcode(errcode.ErrIntegerOverflow, op)
		}
		it.push(api.I32(v1 / v2))
	case wasm.OpcodeI32DivU:
		v2, v1 := uint32(it.pop().Raw), uint32(it.pop().Raw)
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		it.push(api.I32(int32(v1 / v2)))
	case wasm.OpcodeI32RemS:
		v2, v1 := int32(it.pop().Raw), int32(it.pop().Raw)
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		it.push(api.I32(v1 % v2))
	case wasm.OpcodeI32RemU:
		v2, v1 := uint32(it.pop().Raw), uint32(it.pop().Raw)
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		it.push(api.I32(int32(v1 % v2)))

	// i64 unary
	case wasm.OpcodeI64Clz:
		it.push(api.I64(int64(bits.LeadingZeros64(it.pop().Raw))))
	case wasm.OpcodeI64Ctz:
		it.push(api.I64(int64(bits.TrailingZeros64(it.pop().Raw))))
	case wasm.OpcodeI64Popcnt:
		it.push(api.I64(int64(bits.OnesCount64(it.pop().Raw))))

	// i64 binary
	case wasm.OpcodeI64Add, wasm.OpcodeI64Sub, wasm.OpcodeI64Mul,
		wasm.OpcodeI64And, wasm.OpcodeI64Or, wasm.OpcodeI64Xor,
		wasm.OpcodeI64Shl, wasm.OpcodeI64ShrS, wasm.OpcodeI64ShrU,
		wasm.OpcodeI64Rotl, wasm.OpcodeI64Rotr:
		v2, v1 := it.pop().Raw, it.pop().Raw
		var v uint64
		switch op {
		case wasm.OpcodeI64Add:
			v = v1 + v2
		case wasm.OpcodeI64Sub:
			v = v1 - v2
		case wasm.OpcodeI64Mul:
			v = v1 * v2
		case wasm.OpcodeI64And:
			v = v1 & v2
		case wasm.OpcodeI64Or:
			v = v1 | v2
		case wasm.OpcodeI64Xor:
			v = v1 ^ v2
		case wasm.OpcodeI64Shl:
			v = v1 << (v2 % 64)
		case wasm.OpcodeI64ShrS:
			v = uint64(int64(v1) >> (v2 % 64))
		case wasm.OpcodeI64ShrU:
			v = v1 >> (v2 % 64)
		case wasm.OpcodeI64Rotl:
			v = bits.RotateLeft64(v1, int(v2))
		case wasm.OpcodeI64Rotr:
			v = bits.RotateLeft64(v1, -int(v2))
		}
		it.push(api.I64(int64(v)))

	case wasm.OpcodeI64DivS:
		v2, v1 := int64(it.pop().Raw), int64(it.pop().Raw)
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		if v1 == math.MinInt64 && v2 == -1 {
			return errcode.WithOpcode(errcode.ErrIntegerOverflow, op)
		}
		it.push(api.I64(v1 / v2))
	case wasm.OpcodeI64DivU:
		v2, v1 := it.pop().Raw, it.pop().Raw
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		it.push(api.I64(int64(v1 / v2)))
	case wasm.OpcodeI64RemS:
		v2, v1 := int64(it.pop().Raw), int64(it.pop().Raw)
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		it.push(api.I64(v1 % v2))
	case wasm.OpcodeI64RemU:
		v2, v1 := it.pop().Raw, it.pop().Raw
		if v2 == 0 {
			return errcode.WithOpcode(errcode.ErrDivideByZero, op)
		}
		it.push(api.I64(int64(v1 % v2)))

	// f32 unary. abs, neg and copysign are sign-bit operations and preserve
	// NaN payloads; the arithmetic ops canonicalize any NaN they produce.
	case wasm.OpcodeF32Abs:
		it.push(wasm.Value{Type: wasm.ValueTypeF32, Raw: it.pop().Raw &^ (1 << 31)})
	case wasm.OpcodeF32Neg:
		it.push(wasm.Value{Type: wasm.ValueTypeF32, Raw: uint64(uint32(it.pop().Raw) ^ (1 << 31))})
	case wasm.OpcodeF32Ceil:
		it.push(api.F32(moremath.CanonicalizeF32(float32(math.Ceil(float64(it.pop().AsF32()))))))
	case wasm.OpcodeF32Floor:
		it.push(api.F32(moremath.CanonicalizeF32(float32(math.Floor(float64(it.pop().AsF32()))))))
	case wasm.OpcodeF32Trunc:
		it.push(api.F32(moremath.CanonicalizeF32(float32(math.Trunc(float64(it.pop().AsF32()))))))
	case wasm.OpcodeF32Nearest:
		it.push(api.F32(moremath.CanonicalizeF32(moremath.WasmCompatNearestF32(it.pop().AsF32()))))
	case wasm.OpcodeF32Sqrt:
		it.push(api.F32(moremath.CanonicalizeF32(float32(math.Sqrt(float64(it.pop().AsF32()))))))

	// f32 binary
	case wasm.OpcodeF32Add, wasm.OpcodeF32Sub, wasm.OpcodeF32Mul, wasm.OpcodeF32Div:
		v2, v1 := it.pop().AsF32(), it.pop().AsF32()
		var v float32
		switch op {
		case wasm.OpcodeF32Add:
			v = v1 + v2
		case wasm.OpcodeF32Sub:
			v = v1 - v2
		case wasm.OpcodeF32Mul:
			v = v1 * v2
		case wasm.OpcodeF32Div:
			v = v1 / v2
		}
		it.push(api.F32(moremath.CanonicalizeF32(v)))
	case wasm.OpcodeF32Min:
		v2, v1 := it.pop().AsF32(), it.pop().AsF32()
		it.push(api.F32(moremath.CanonicalizeF32(float32(moremath.WasmCompatMin(float64(v1), float64(v2))))))
	case wasm.OpcodeF32Max:
		v2, v1 := it.pop().AsF32(), it.pop().AsF32()
		it.push(api.F32(moremath.CanonicalizeF32(float32(moremath.WasmCompatMax(float64(v1), float64(v2))))))
	case wasm.OpcodeF32Copysign:
		v2, v1 := uint32(it.pop().Raw), uint32(it.pop().Raw)
		const signbit = 1 << 31
		it.push(wasm.Value{Type: wasm.ValueTypeF32, Raw: uint64(v1&^signbit | v2&signbit)})

	// f64 unary
	case wasm.OpcodeF64Abs:
		it.push(wasm.Value{Type: wasm.ValueTypeF64, Raw: it.pop().Raw &^ (1 << 63)})
	case wasm.OpcodeF64Neg:
		it.push(wasm.Value{Type: wasm.ValueTypeF64, Raw: it.pop().Raw ^ (1 << 63)})
	case wasm.OpcodeF64Ceil:
		it.push(api.F64(moremath.CanonicalizeF64(math.Ceil(it.pop().AsF64()))))
	case wasm.OpcodeF64Floor:
		it.push(api.F64(moremath.CanonicalizeF64(math.Floor(it.pop().AsF64()))))
	case wasm.OpcodeF64Trunc:
		it.push(api.F64(moremath.CanonicalizeF64(math.Trunc(it.pop().AsF64()))))
	case wasm.OpcodeF64Nearest:
		it.push(api.F64(moremath.CanonicalizeF64(moremath.WasmCompatNearestF64(it.pop().AsF64()))))
	case wasm.OpcodeF64Sqrt:
		it.push(api.F64(moremath.CanonicalizeF64(math.Sqrt(it.pop().AsF64()))))

	// f64 binary
	case wasm.OpcodeF64Add, wasm.OpcodeF64Sub, wasm.OpcodeF64Mul, wasm.OpcodeF64Div:
		v2, v1 := it.pop().AsF64(), it.pop().AsF64()
		var v float64
		switch op {
		case wasm.OpcodeF64Add:
			v = v1 + v2
		case wasm.OpcodeF64Sub:
			v = v1 - v2
		case wasm.OpcodeF64Mul:
			v = v1 * v2
		case wasm.OpcodeF64Div:
			v = v1 / v2
		}
		it.push(api.F64(moremath.CanonicalizeF64(v)))
	case wasm.OpcodeF64Min:
		v2, v1 := it.pop().AsF64(), it.pop().AsF64()
		it.push(api.F64(moremath.CanonicalizeF64(moremath.WasmCompatMin(v1, v2))))
	case wasm.OpcodeF64Max:
		v2, v1 := it.pop().AsF64(), it.pop().AsF64()
		it.push(api.F64(moremath.CanonicalizeF64(moremath.WasmCompatMax(v1, v2))))
	case wasm.OpcodeF64Copysign:
		v2, v1 := it.pop().Raw, it.pop().Raw
		const signbit = uint64(1) << 63
		it.push(wasm.Value{Type: wasm.ValueTypeF64, Raw: v1&^signbit | v2&signbit})

	// conversions
	case wasm.OpcodeI32WrapI64:
		it.push(api.I32(int32(uint32(it.pop().Raw))))

	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF64S:
		var v float64
		if op == wasm.OpcodeI32TruncF32S {
			v = math.Trunc(float64(it.pop().AsF32()))
		} else {
			v = math.Trunc(it.pop().AsF64())
		}
		if math.IsNaN(v) {
			return errcode.WithOpcode(errcode.ErrInvalidConversionToInteger, op)
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return errcode.WithOpcode(errcode.ErrIntegerOverflow, op)
		}
		it.push(api.I32(int32(v)))
	case wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64U:
		var v float64
		if op == wasm.OpcodeI32TruncF32U {
			v = math.Trunc(float64(it.pop().AsF32()))
		} else {
			v = math.Trunc(it.pop().AsF64())
		}
		if math.IsNaN(v) {
			return errcode.WithOpcode(errcode.ErrInvalidConversionToInteger, op)
		}
		if v < 0 || v > math.MaxUint32 {
			return errcode.WithOpcode(errcode.ErrIntegerOverflow, op)
		}
		it.push(api.I32(int32(uint32(v))))

	case wasm.OpcodeI64ExtendI32S:
		it.push(api.I64(int64(int32(it.pop().Raw))))
	case wasm.OpcodeI64ExtendI32U:
		it.push(api.I64(int64(uint32(it.pop().Raw))))

	case wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF64S:
		var v float64
		if op == wasm.OpcodeI64TruncF32S {
			v = math.Trunc(float64(it.pop().AsF32()))
		} else {
			v = math.Trunc(it.pop().AsF64())
		}
		if math.IsNaN(v) {
			return errcode.WithOpcode(errcode.ErrInvalidConversionToInteger, op)
		}
		// math.MaxInt64 rounds up to 2^63 in float representation, hence >=.
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return errcode.WithOpcode(errcode.ErrIntegerOverflow, op)
		}
		it.push(api.I64(int64(v)))
	case wasm.OpcodeI64TruncF32U, wasm.OpcodeI64TruncF64U:
		var v float64
		if op == wasm.OpcodeI64TruncF32U {
			v = math.Trunc(float64(it.pop().AsF32()))
		} else {
			v = math.Trunc(it.pop().AsF64())
		}
		if math.IsNaN(v) {
			return errcode.WithOpcode(errcode.ErrInvalidConversionToInteger, op)
		}
		// math.MaxUint64 rounds up to 2^64 in float representation, hence >=.
		if v < 0 || v >= math.MaxUint64 {
			return errcode.WithOpcode(errcode.ErrIntegerOverflow, op)
		}
		it.push(api.I64(int64(uint64(v))))

	case wasm.OpcodeF32ConvertI32S:
		it.push(api.F32(float32(int32(it.pop().Raw))))
	case wasm.OpcodeF32ConvertI32U:
		it.push(api.F32(float32(uint32(it.pop().Raw))))
	case wasm.OpcodeF32ConvertI64S:
		it.push(api.F32(float32(int64(it.pop().Raw))))
	case wasm.OpcodeF32ConvertI64U:
		it.push(api.F32(float32(it.pop().Raw)))
	case wasm.OpcodeF32DemoteF64:
		it.push(api.F32(moremath.CanonicalizeF32(float32(it.pop().AsF64()))))

	case wasm.OpcodeF64ConvertI32S:
		it.push(api.F64(float64(int32(it.pop().Raw))))
	case wasm.OpcodeF64ConvertI32U:
		it.push(api.F64(float64(uint32(it.pop().Raw))))
	case wasm.OpcodeF64ConvertI64S:
		it.push(api.F64(float64(int64(it.pop().Raw))))
	case wasm.OpcodeF64ConvertI64U:
		it.push(api.F64(float64(it.pop().Raw)))
	case wasm.OpcodeF64PromoteF32:
		it.push(api.F64(moremath.CanonicalizeF64(float64(it.pop().AsF32()))))

	// reinterprets move the bit pattern between tags untouched
	case wasm.OpcodeI32ReinterpretF32:
		it.push(wasm.Value{Type: wasm.ValueTypeI32, Raw: uint64(uint32(it.pop().Raw))})
	case wasm.OpcodeI64ReinterpretF64:
		it.push(wasm.Value{Type: wasm.ValueTypeI64, Raw: it.pop().Raw})
	case wasm.OpcodeF32ReinterpretI32:
		it.push(wasm.Value{Type: wasm.ValueTypeF32, Raw: uint64(uint32(it.pop().Raw))})
	case wasm.OpcodeF64ReinterpretI64:
		it.push(wasm.Value{Type: wasm.ValueTypeF64, Raw: it.pop().Raw})

	default:
		return errors.Wrapf(errcode.ErrUnknownOpcode, "%#x at runtime", op)
	}
	return nil
}
