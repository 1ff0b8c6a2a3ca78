// Package errcode defines the single flat error taxonomy of the runtime.
// Every fallible operation in the core returns one of these sentinels,
// possibly wrapped with positional context; nothing is recovered internally,
// the embedder decides what to do with the kind it receives.
package errcode

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// I/O errors raised by the loader.
var (
	// ErrInvalidPath indicates the input file could not be opened.
	ErrInvalidPath = errors.New("invalid path")
	// ErrReadError indicates a read from the input failed for a reason other
	// than reaching the end.
	ErrReadError = errors.New("read error")
	// ErrEndOfFile indicates the input ended before the expected byte count.
	ErrEndOfFile = errors.New("unexpected end of file")
)

// Decode errors raised while parsing the binary format.
var (
	// ErrInvalidMagic indicates the input does not start with "\0asm".
	ErrInvalidMagic = errors.New("invalid magic number")
	// ErrInvalidVersion indicates an unsupported binary format or compiled
	// module version.
	ErrInvalidVersion = errors.New("invalid version header")
	// ErrMalformedBinary indicates a structurally invalid encoding, e.g. an
	// unknown value type or a bad flag byte.
	ErrMalformedBinary = errors.New("malformed binary")
	// ErrUnexpectedEnd indicates the byte stream ended inside an entity.
	ErrUnexpectedEnd = errors.New("unexpected end of binary")
	// ErrSectionSizeMismatch indicates a section's declared size disagrees
	// with the bytes its content consumed.
	ErrSectionSizeMismatch = errors.New("section size mismatch")
	// ErrSectionOrder indicates a non-custom section appeared out of the
	// canonical order.
	ErrSectionOrder = errors.New("invalid section order")
	// ErrUnknownOpcode indicates an opcode byte not defined in WebAssembly
	// 1.0 (20191205).
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrIntegerTooLong indicates a LEB128 integer exceeded its size bound.
	ErrIntegerTooLong = errors.New("integer representation too long")
	// ErrInvalidUTF8 indicates a name is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8 encoding")
)

// Validation and link errors.
var (
	// ErrValidationFailed indicates the module failed static validation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrTypeMismatch indicates a value type differed from the declared one.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnknownImport indicates no registered module or export satisfies an
	// import's module/name pair.
	ErrUnknownImport = errors.New("unknown import")
	// ErrImportTypeMismatch indicates the resolved export is a different
	// kind than the import descriptor.
	ErrImportTypeMismatch = errors.New("import kind mismatch")
	// ErrIncompatibleImportType indicates the resolved export's type is not
	// compatible with the import descriptor, e.g. narrower limits.
	ErrIncompatibleImportType = errors.New("incompatible import type")
	// ErrModuleNameConflict indicates a module is already registered under
	// the requested name.
	ErrModuleNameConflict = errors.New("module name conflict")
	// ErrElemSegDoesNotFit indicates an element segment lies outside its
	// table. Raised before any table slot is written.
	ErrElemSegDoesNotFit = errors.New("elements segment does not fit")
	// ErrDataSegDoesNotFit indicates a data segment lies outside its memory.
	// Raised before any byte is written.
	ErrDataSegDoesNotFit = errors.New("data segment does not fit")
	// ErrConstExprRequired indicates an initializer used an opcode outside
	// the constant-expression subset.
	ErrConstExprRequired = errors.New("constant expression required")
)

// Runtime traps. These unwind the current invocation and surface to the
// embedder; the store remains usable.
var (
	// ErrUnreachable means the "unreachable" instruction was executed.
	ErrUnreachable = errors.New("unreachable")
	// ErrDivideByZero indicates an integer div or rem with 0 as the divisor.
	ErrDivideByZero = errors.New("integer divide by zero")
	// ErrIntegerOverflow indicates integer arithmetic overflowed, e.g.
	// INT_MIN / -1 or a float-to-int truncation out of range.
	ErrIntegerOverflow = errors.New("integer overflow")
	// ErrInvalidConversionToInteger indicates a trunc instruction consumed NaN.
	ErrInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrMemoryOutOfBounds indicates an access beyond the linear memory.
	ErrMemoryOutOfBounds = errors.New("out of bounds memory access")
	// ErrIndirectCallTypeMismatch indicates the call_indirect type check failed.
	ErrIndirectCallTypeMismatch = errors.New("indirect call type mismatch")
	// ErrFuncSigMismatch indicates invocation parameters disagree with the
	// callee signature.
	ErrFuncSigMismatch = errors.New("function signature mismatch")
	// ErrUninitializedElement indicates call_indirect through a null table slot.
	ErrUninitializedElement = errors.New("uninitialized element")
	// ErrUndefinedElement indicates a table access beyond the table length.
	ErrUndefinedElement = errors.New("undefined element")
	// ErrInterrupted indicates the embedder's tick callback requested a trap.
	ErrInterrupted = errors.New("interrupted")
	// ErrCallStackExhausted indicates the call-frame ceiling was hit.
	ErrCallStackExhausted = errors.New("call stack exhausted")
	// ErrImmutableGlobal indicates global.set on a global declared immutable.
	ErrImmutableGlobal = errors.New("global is immutable")
)

// Programming errors.
var (
	// ErrWrongInstanceAddress indicates a lookup through a dead or
	// never-allocated store address.
	ErrWrongInstanceAddress = errors.New("wrong instance address")
)

// WithOffset decorates err with the byte offset at which decoding failed.
// The sentinel stays matchable through errors.Is.
func WithOffset(err error, offset uint64) error {
	return pkgerrors.Wrapf(err, "at offset %#x", offset)
}

// WithOpcode decorates a trap with the faulting opcode byte.
func WithOpcode(err error, opcode byte) error {
	return pkgerrors.Wrapf(err, "at opcode %#x", opcode)
}

// WithSection decorates err with the section being decoded.
func WithSection(err error, section string) error {
	return pkgerrors.Wrap(err, fmt.Sprintf("section %s", section))
}
