// Package moremath holds the float operations whose Go standard library
// behavior differs from the WebAssembly specification, plus the canonical
// NaN handling every float-producing instruction routes through.
package moremath

import "math"

const (
	// CanonicalNaNBits32 is the f32 canonical NaN: sign 0, exponent all
	// ones, mantissa with only the most significant bit set.
	CanonicalNaNBits32 = uint32(0x7fc0_0000)
	// CanonicalNaNBits64 is the f64 canonical NaN.
	CanonicalNaNBits64 = uint64(0x7ff8_0000_0000_0000)
)

// CanonicalizeF32 replaces any NaN with the canonical NaN of f32 so a NaN
// produced by an operation always stores the same bit pattern.
func CanonicalizeF32(f float32) float32 {
	if f != f {
		return math.Float32frombits(CanonicalNaNBits32)
	}
	return f
}

// CanonicalizeF64 replaces any NaN with the canonical NaN of f64.
func CanonicalizeF64(f float64) float64 {
	if math.IsNaN(f) {
		return math.Float64frombits(CanonicalNaNBits64)
	}
	return f
}

// WasmCompatMin is the Wasm-spec float minimum. math.Min doesn't comply:
// here either operand being NaN results in NaN even if the other is -Inf,
// and -0 orders below +0.
func WasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax is the Wasm-spec float maximum, with NaN propagation and
// zero-sign handling analogous to WasmCompatMin.
func WasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatNearestF32 rounds to the nearest integer, ties to even, which
// is "nearest" in the Wasm spec. math.Round rounds ties away from zero.
func WasmCompatNearestF32(f float32) float32 {
	return float32(WasmCompatNearestF64(float64(f)))
}

// WasmCompatNearestF64 rounds to the nearest integer, ties to even.
func WasmCompatNearestF64(f float64) float64 {
	// math.RoundToEven matches the required ties-to-even behavior and
	// preserves -0, NaN and infinities.
	return math.RoundToEven(f)
}
