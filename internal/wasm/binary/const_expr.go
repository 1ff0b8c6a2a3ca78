package binary

import (
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// decodeConstantExpression decodes an initializer: one of the four const
// opcodes or global.get, terminated by end. Any other opcode fails with
// ErrConstExprRequired.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#constant-expressions%E2%91%A0
func decodeConstantExpression(r *binreader.Reader) (*wasm.ConstantExpression, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, errors.WithMessage(err, "read opcode")
	}

	expr := &wasm.ConstantExpression{Opcode: b}
	switch b {
	case wasm.OpcodeI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return nil, errors.WithMessage(err, "i32.const value")
		}
		expr.Val = api.I32(v)
	case wasm.OpcodeI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return nil, errors.WithMessage(err, "i64.const value")
		}
		expr.Val = api.I64(v)
	case wasm.OpcodeF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return nil, errors.WithMessage(err, "f32.const value")
		}
		expr.Val = api.F32(v)
	case wasm.OpcodeF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return nil, errors.WithMessage(err, "f64.const value")
		}
		expr.Val = api.F64(v)
	case wasm.OpcodeGlobalGet:
		if expr.GlobalIndex, err = r.ReadU32(); err != nil {
			return nil, errors.WithMessage(err, "global.get index")
		}
	default:
		return nil, errors.Wrapf(errcode.ErrConstExprRequired,
			"%s (%#x) is not a constant instruction", wasm.InstructionName(b), b)
	}

	if b, err = r.ReadByte(); err != nil {
		return nil, errors.WithMessage(err, "look for end opcode")
	}
	if b != wasm.OpcodeEnd {
		return nil, errors.Wrap(errcode.ErrMalformedBinary, "constant expression has not been terminated")
	}
	return expr, nil
}
