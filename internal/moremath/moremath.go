// Package moremath supplies the floating-point helpers the WebAssembly
// numeric operators need that differ from Go's math package in their NaN and
// signed-zero handling.
package moremath

import "math"

// WasmCompatMin is the same as math.Min except a NaN in either operand
// always results in NaN, even when the other operand is -Inf. math.Min
// special-cases NaN only when neither argument is infinite.
//
// https://github.com/golang/go/blob/master/src/math/dim.go
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

// WasmCompatMax is the math.Max analog of WasmCompatMin.
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

// WasmCompatNearestF32 implements the "round to nearest, ties to even"
// semantics of the f32.nearest operator, which differs from math.Round
// (ties away from zero).
func WasmCompatNearestF32(f float32) float32 {
	return float32(wasmCompatNearest(float64(f)))
}

// WasmCompatNearestF64 is the float64 form of WasmCompatNearestF32.
func WasmCompatNearestF64(f float64) float64 {
	return wasmCompatNearest(f)
}

func wasmCompatNearest(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return f
	}
	rounded := math.Round(f)
	if diff := math.Abs(f - math.Trunc(f)); diff == 0.5 {
		// Ties to even: math.Round takes ties away from zero, so fix up the
		// cases where the rounded magnitude is odd.
		if math.Mod(rounded, 2) != 0 {
			if rounded > f {
				rounded--
			} else {
				rounded++
			}
		}
	}
	return rounded
}
