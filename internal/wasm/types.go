package wasm

import (
	"github.com/zenovm/zeno/api"
)

// Index is the offset in an index space, not necessarily an absolute
// position in a Module section, because index spaces are often preceded by
// the corresponding imports.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-index
type Index = uint32

// ValueType is the binary encoding of a type such as i32.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = api.ValueType

const (
	ValueTypeI32 = api.ValueTypeI32
	ValueTypeI64 = api.ValueTypeI64
	ValueTypeF32 = api.ValueTypeF32
	ValueTypeF64 = api.ValueTypeF64
)

// ValueTypeName returns the canonical text-format name of the type.
func ValueTypeName(t ValueType) string { return api.ValueTypeName(t) }

// Value is a tagged runtime value.
type Value = api.Value

// FunctionType is a possibly empty function signature.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-types%E2%91%A0
type FunctionType = api.FunctionType

// Limits is the (min, optional max) pair constraining a table or memory
// size. For memory, one unit is a 65536-byte page.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-limits
type Limits struct {
	Min uint32
	Max *uint32
}

// ElemTypeFuncref is the only element type in WebAssembly 1.0 (20191205).
const ElemTypeFuncref byte = 0x70

// Table is the binary representation of a table definition.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-table
type Table struct {
	// ElemType is fixed to ElemTypeFuncref in WebAssembly 1.0 (20191205).
	ElemType byte
	Limit    *Limits
}

const (
	// MemoryPageSize is the unit of linear memory length: 2^16 bytes.
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
	MemoryPageSize = uint32(65536)
	// MemoryMaxPages bounds any memory: 2^16 pages, i.e. 4GiB.
	MemoryMaxPages = uint32(65536)
	// MemoryPageSizeInBits satisfies "1 << MemoryPageSizeInBits == MemoryPageSize".
	MemoryPageSizeInBits = 16
)

// MemoryPagesToBytesNum converts pages into the number of bytes they span.
func MemoryPagesToBytesNum(pages uint32) uint64 {
	return uint64(pages) << MemoryPageSizeInBits
}

// Memory is the binary representation of a memory definition. Max is
// MemoryMaxPages when the encoding declared none; IsMaxEncoded remembers the
// difference, which matters when matching import limits.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-memory
type Memory struct {
	Min, Max     uint32
	IsMaxEncoded bool
}

// GlobalType is the type and mutability of a global.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-globaltype
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global is a global definition: its type plus the constant initializer
// evaluated at instantiation.
type Global struct {
	Type *GlobalType
	Init *ConstantExpression
}

// ConstantExpression is the decoded form of an initializer: one of the four
// const opcodes carrying its immediate, or OpcodeGlobalGet carrying the
// index of an imported immutable global.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#constant-expressions%E2%91%A0
type ConstantExpression struct {
	Opcode Opcode
	// Val is the immediate when Opcode is a const.
	Val Value
	// GlobalIndex is the immediate when Opcode is OpcodeGlobalGet.
	GlobalIndex Index
}

// ExternType classifies an import or export: function, table, memory or
// global.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the canonical name of the externdesc.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return "unknown"
}

// Import is the binary representation of an import indicated by Type.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-import
type Import struct {
	Type ExternType
	// Module is the possibly empty primary namespace of this import.
	Module string
	// Name is the possibly empty secondary namespace of this import.
	Name string
	// DescFunc is the index in Module.TypeSection when Type equals ExternTypeFunc.
	DescFunc Index
	// DescTable is the inlined Table when Type equals ExternTypeTable.
	DescTable *Table
	// DescMem is the inlined Memory when Type equals ExternTypeMemory.
	DescMem *Memory
	// DescGlobal is the inlined GlobalType when Type equals ExternTypeGlobal.
	DescGlobal *GlobalType
}

// Export is the binary representation of an export indicated by Type.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-export
type Export struct {
	Type ExternType
	// Name is what the embedder looks this definition up by.
	Name string
	// Index is into the index space matching Type.
	Index Index
}

// ElementSegment initializes a run of table slots with function indices at
// instantiation.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-elem
type ElementSegment struct {
	TableIndex Index
	OffsetExpr *ConstantExpression
	Init       []Index
}

// DataSegment initializes a run of linear memory bytes at instantiation.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-data
type DataSegment struct {
	MemoryIndex Index
	OffsetExpr  *ConstantExpression
	Init        []byte
}

// Code is an entry in the Module.CodeSection: the function-scoped locals in
// insertion order and the decoded instruction body.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-code
type Code struct {
	LocalTypes []ValueType
	Body       []Instruction
}

// CustomSection is an id-0 section, retained uninterpreted.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#custom-section%E2%91%A0
type CustomSection struct {
	Name string
	Data []byte
}
