package value

import (
	"math"

	"github.com/chewxy/math32"
)

// Float32 arithmetic/transcendental helpers used by the interpreter's f32
// instruction family. Binary +, -, *, / and unary negation are native
// Go float32 operators (IEEE 754 binary32, deterministic across
// platforms); everything math.Sqrt-shaped is routed through math32
// instead of converting to float64 and back through the stdlib math
// package, which is the reason the teacher depends on math32 in the
// first place: a promote-compute-demote round trip can round
// differently than computing directly in binary32.
func F32Abs(v float32) float32      { return math32.Abs(v) }
func F32Ceil(v float32) float32     { return math32.Ceil(v) }
func F32Floor(v float32) float32    { return math32.Floor(v) }
func F32Trunc(v float32) float32    { return math32.Trunc(v) }
func F32Sqrt(v float32) float32     { return math32.Sqrt(v) }
func F32Min(a, b float32) float32   { return math32.Min(a, b) }
func F32Max(a, b float32) float32   { return math32.Max(a, b) }
func F32Copysign(a, b float32) float32 { return math32.Copysign(a, b) }

// F32Nearest rounds to the nearest integer, ties to even, the rounding
// mode Wasm's f32.nearest requires.
func F32Nearest(v float32) float32 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return v
	}
	lower := math32.Floor(v)
	diff := v - lower
	switch {
	case diff < 0.5:
		return lower
	case diff > 0.5:
		return lower + 1
	default:
		if math32.Mod(lower, 2) == 0 {
			return lower
		}
		return lower + 1
	}
}

// Float64 counterparts use the stdlib math package directly; there is no
// "math64" determinism concern analogous to math32's.
func F64Abs(v float64) float64        { return math.Abs(v) }
func F64Ceil(v float64) float64       { return math.Ceil(v) }
func F64Floor(v float64) float64      { return math.Floor(v) }
func F64Trunc(v float64) float64      { return math.Trunc(v) }
func F64Sqrt(v float64) float64       { return math.Sqrt(v) }
func F64Min(a, b float64) float64     { return math.Min(a, b) }
func F64Max(a, b float64) float64     { return math.Max(a, b) }
func F64Copysign(a, b float64) float64 { return math.Copysign(a, b) }

func F64Nearest(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.RoundToEven(v)
}
