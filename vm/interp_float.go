package vm

import (
	"math"

	"github.com/neri/maystorm-wasm/opcode"
	"github.com/neri/maystorm-wasm/value"
)

// execFloat implements f32/f64 comparison and arithmetic, guarded by
// floatEnabled at the call site in execOpcode. Transcendental f32 ops
// go through value's math32-backed helpers to stay float32-native
// instead of promoting through float64 and rounding back, which would
// not reproduce Wasm's required bit-exact f32 results in every case.
func execFloat(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	if op >= opcode.F32Abs && op <= opcode.F32Copysign && op != opcode.F32Neg {
		return execF32Unary2(op, stack, sp)
	}
	if op >= opcode.F64Abs && op <= opcode.F64Copysign && op != opcode.F64Neg {
		return execF64Unary2(op, stack, sp)
	}
	if op == opcode.F32Neg {
		stack[sp-1] = uint64(math.Float32bits(-math.Float32frombits(uint32(stack[sp-1]))))
		return sp, nil
	}
	if op == opcode.F64Neg {
		stack[sp-1] = math.Float64bits(-math.Float64frombits(stack[sp-1]))
		return sp, nil
	}
	if op >= opcode.F32Eq && op <= opcode.F32Ge {
		return execF32Cmp(op, stack, sp)
	}
	if op >= opcode.F64Eq && op <= opcode.F64Ge {
		return execF64Cmp(op, stack, sp)
	}
	return sp, trap(NotSupported)
}

// execF32Unary2 handles every f32 instruction that is either a unary
// transform (abs/ceil/floor/trunc/nearest/sqrt) or a binary op
// (add/sub/mul/div/min/max/copysign); the binary forms consume two
// operands and leave one.
func execF32Unary2(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	switch op {
	case opcode.F32Abs, opcode.F32Ceil, opcode.F32Floor, opcode.F32Trunc, opcode.F32Nearest, opcode.F32Sqrt:
		v := math.Float32frombits(uint32(stack[sp-1]))
		var r float32
		switch op {
		case opcode.F32Abs:
			r = value.F32Abs(v)
		case opcode.F32Ceil:
			r = value.F32Ceil(v)
		case opcode.F32Floor:
			r = value.F32Floor(v)
		case opcode.F32Trunc:
			r = value.F32Trunc(v)
		case opcode.F32Nearest:
			r = value.F32Nearest(v)
		case opcode.F32Sqrt:
			r = value.F32Sqrt(v)
		}
		stack[sp-1] = uint64(math.Float32bits(r))
		return sp, nil
	}

	b := math.Float32frombits(uint32(stack[sp-1]))
	a := math.Float32frombits(uint32(stack[sp-2]))
	sp--
	var r float32
	switch op {
	case opcode.F32Add:
		r = a + b
	case opcode.F32Sub:
		r = a - b
	case opcode.F32Mul:
		r = a * b
	case opcode.F32Div:
		r = a / b
	case opcode.F32Min:
		r = value.F32Min(a, b)
	case opcode.F32Max:
		r = value.F32Max(a, b)
	case opcode.F32Copysign:
		r = value.F32Copysign(a, b)
	default:
		return sp, trap(NotSupported)
	}
	stack[sp-1] = uint64(math.Float32bits(r))
	return sp, nil
}

func execF64Unary2(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	switch op {
	case opcode.F64Abs, opcode.F64Ceil, opcode.F64Floor, opcode.F64Trunc, opcode.F64Nearest, opcode.F64Sqrt:
		v := math.Float64frombits(stack[sp-1])
		var r float64
		switch op {
		case opcode.F64Abs:
			r = value.F64Abs(v)
		case opcode.F64Ceil:
			r = value.F64Ceil(v)
		case opcode.F64Floor:
			r = value.F64Floor(v)
		case opcode.F64Trunc:
			r = value.F64Trunc(v)
		case opcode.F64Nearest:
			r = value.F64Nearest(v)
		case opcode.F64Sqrt:
			r = value.F64Sqrt(v)
		}
		stack[sp-1] = math.Float64bits(r)
		return sp, nil
	}

	b := math.Float64frombits(stack[sp-1])
	a := math.Float64frombits(stack[sp-2])
	sp--
	var r float64
	switch op {
	case opcode.F64Add:
		r = a + b
	case opcode.F64Sub:
		r = a - b
	case opcode.F64Mul:
		r = a * b
	case opcode.F64Div:
		r = a / b
	case opcode.F64Min:
		r = value.F64Min(a, b)
	case opcode.F64Max:
		r = value.F64Max(a, b)
	case opcode.F64Copysign:
		r = value.F64Copysign(a, b)
	default:
		return sp, trap(NotSupported)
	}
	stack[sp-1] = math.Float64bits(r)
	return sp, nil
}

func execF32Cmp(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	b := math.Float32frombits(uint32(stack[sp-1]))
	a := math.Float32frombits(uint32(stack[sp-2]))
	sp--
	var r bool
	switch op {
	case opcode.F32Eq:
		r = a == b
	case opcode.F32Ne:
		r = a != b
	case opcode.F32Lt:
		r = a < b
	case opcode.F32Gt:
		r = a > b
	case opcode.F32Le:
		r = a <= b
	case opcode.F32Ge:
		r = a >= b
	}
	stack[sp-1] = uint64(boolU32(r))
	return sp, nil
}

func execF64Cmp(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	b := math.Float64frombits(stack[sp-1])
	a := math.Float64frombits(stack[sp-2])
	sp--
	var r bool
	switch op {
	case opcode.F64Eq:
		r = a == b
	case opcode.F64Ne:
		r = a != b
	case opcode.F64Lt:
		r = a < b
	case opcode.F64Gt:
		r = a > b
	case opcode.F64Le:
		r = a <= b
	case opcode.F64Ge:
		r = a >= b
	}
	stack[sp-1] = uint64(boolU32(r))
	return sp, nil
}
