// Package api includes constants and interfaces used by both end-users and internal implementations.
package api

import (
	"fmt"
	"math"
)

// ValueType describes a parameter or result type mapped to a WebAssembly
// function signature.
//
// The following describes how to convert between Wasm and Golang types:
//   - ValueTypeI32 - uint64(uint32,int32)
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32 DecodeF32 from float32
//   - ValueTypeF64 - EncodeF64 DecodeF64 from float64
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit floating point number.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit floating point number.
	ValueTypeF64 ValueType = 0x7c
)

// ValueTypeName returns the type name of the given ValueType as a string.
// These type names match the names used in the WebAssembly text format.
//
// Note: This returns "unknown", if an undefined ValueType value is passed.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// Value is a tagged WebAssembly value: a ValueType plus the raw 64-bit
// representation of the payload. Floats are stored as their IEEE-754 bit
// pattern, so == on Value compares floats bitwise, which keeps NaN payloads
// observable and comparisons deterministic.
type Value struct {
	Type ValueType
	// Raw holds the 64-bit representation of the actual value.
	Raw uint64
}

// I32 creates an i32 Value.
func I32(v int32) Value { return Value{Type: ValueTypeI32, Raw: uint64(uint32(v))} }

// I64 creates an i64 Value.
func I64(v int64) Value { return Value{Type: ValueTypeI64, Raw: uint64(v)} }

// F32 creates an f32 Value.
func F32(v float32) Value { return Value{Type: ValueTypeF32, Raw: EncodeF32(v)} }

// F64 creates an f64 Value.
func F64(v float64) Value { return Value{Type: ValueTypeF64, Raw: EncodeF64(v)} }

// AsI32 returns the value as a signed 32-bit integer.
func (v Value) AsI32() int32 { return int32(uint32(v.Raw)) }

// AsI64 returns the value as a signed 64-bit integer.
func (v Value) AsI64() int64 { return int64(v.Raw) }

// AsF32 returns the value as a 32-bit float.
func (v Value) AsF32() float32 { return DecodeF32(v.Raw) }

// AsF64 returns the value as a 64-bit float.
func (v Value) AsF64() float64 { return DecodeF64(v.Raw) }

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.Type {
	case ValueTypeI32:
		return fmt.Sprintf("i32(%d)", v.AsI32())
	case ValueTypeI64:
		return fmt.Sprintf("i64(%d)", v.AsI64())
	case ValueTypeF32:
		return fmt.Sprintf("f32(%g)", v.AsF32())
	case ValueTypeF64:
		return fmt.Sprintf("f64(%g)", v.AsF64())
	}
	return fmt.Sprintf("unknown(%#x)", v.Raw)
}

// ZeroValue returns the zero of the given type, used to initialize declared
// locals.
func ZeroValue(t ValueType) Value { return Value{Type: t} }

// EncodeF32 encodes the input as a bit pattern the way the interpreter and
// the store represent f32.
func EncodeF32(input float32) uint64 {
	return uint64(math.Float32bits(input))
}

// DecodeF32 decodes the bit pattern as float32.
func DecodeF32(input uint64) float32 {
	return math.Float32frombits(uint32(input))
}

// EncodeF64 encodes the input as a bit pattern the way the interpreter and
// the store represent f64.
func EncodeF64(input float64) uint64 {
	return math.Float64bits(input)
}

// DecodeF64 decodes the bit pattern as float64.
func DecodeF64(input uint64) float64 {
	return math.Float64frombits(input)
}

// FunctionType is a possibly empty function signature: an ordered sequence
// of parameter types and an ordered sequence of result types.
//
// Note: In WebAssembly 1.0 (20191205), there can be at most one result.
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a
	// function with this signature.
	Params []ValueType
	// Results are the possibly empty sequence of value types returned by a
	// function with this signature.
	Results []ValueType
}

// String implements fmt.Stringer. The encoding is unique per signature, so
// it doubles as a map key for type identity.
func (t *FunctionType) String() (ret string) {
	for _, b := range t.Params {
		ret += ValueTypeName(b)
	}
	if len(t.Params) == 0 {
		ret += "null"
	}
	ret += "_"
	for _, b := range t.Results {
		ret += ValueTypeName(b)
	}
	if len(t.Results) == 0 {
		ret += "null"
	}
	return
}

// EqualsSignature returns true if the function type has the same parameters and results.
func (t *FunctionType) EqualsSignature(params []ValueType, results []ValueType) bool {
	return valueTypesEqual(t.Params, params) && valueTypesEqual(t.Results, results)
}

func valueTypesEqual(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i, t := range a {
		if b[i] != t {
			return false
		}
	}
	return true
}

// Memory allows restricted access to a module's linear memory. The zero
// offset addresses the first byte of the buffer; all multi-byte accessors
// are little-endian.
//
// Note: This includes all value types available in WebAssembly 1.0 (20191205)
// and all are encoded little-endian.
type Memory interface {
	// Size returns the memory size in bytes available.
	// e.g. If the underlying memory has 1 page: 65536
	Size() uint32

	// ReadByte reads a single byte from the underlying buffer at the offset or returns false if out of range.
	ReadByte(offset uint32) (byte, bool)

	// ReadUint32Le reads a uint32 in little-endian encoding from the underlying buffer at the offset in or returns
	// false if out of range.
	ReadUint32Le(offset uint32) (uint32, bool)

	// ReadUint64Le reads a uint64 in little-endian encoding from the underlying buffer at the offset or returns false
	// if out of range.
	ReadUint64Le(offset uint32) (uint64, bool)

	// ReadFloat32Le reads a float32 from 32 IEEE 754 little-endian encoded bits in the underlying buffer at the offset
	// or returns false if out of range.
	ReadFloat32Le(offset uint32) (float32, bool)

	// ReadFloat64Le reads a float64 from 64 IEEE 754 little-endian encoded bits in the underlying buffer at the offset
	// or returns false if out of range.
	ReadFloat64Le(offset uint32) (float64, bool)

	// Read reads byteCount bytes from the underlying buffer at the offset or returns false if out of range.
	Read(offset, byteCount uint32) ([]byte, bool)

	// WriteByte writes a single byte to the underlying buffer at the offset in or returns false if out of range.
	WriteByte(offset uint32, v byte) bool

	// WriteUint32Le writes the value in little-endian encoding to the underlying buffer at the offset in or returns
	// false if out of range.
	WriteUint32Le(offset, v uint32) bool

	// WriteUint64Le writes the value in little-endian encoding to the underlying buffer at the offset in or returns
	// false if out of range.
	WriteUint64Le(offset uint32, v uint64) bool

	// Write writes the slice to the underlying buffer at the offset or returns false if out of range.
	Write(offset uint32, v []byte) bool
}

// HostFunction is a function implemented by the embedder and callable from
// wasm code through an import.
//
// The memory passed to Call belongs to the module instance of the calling
// frame, resolved at call time; it is nil when the caller's module has no
// memory. Returning a non-nil error traps the calling wasm execution the
// same way an interpreter trap would.
type HostFunction interface {
	// Type returns the wasm signature this function is callable with.
	Type() *FunctionType

	// Call invokes the function with the given parameters, in declaration
	// order, returning results in declaration order.
	Call(mem Memory, params []Value) ([]Value, error)
}

// GoFunc adapts a Go function to the HostFunction interface.
type GoFunc struct {
	FuncType *FunctionType
	Fn       func(mem Memory, params []Value) ([]Value, error)
}

// Type implements HostFunction.Type.
func (f *GoFunc) Type() *FunctionType { return f.FuncType }

// Call implements HostFunction.Call.
func (f *GoFunc) Call(mem Memory, params []Value) ([]Value, error) {
	return f.Fn(mem, params)
}
