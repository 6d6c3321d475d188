package vm

import (
	"math"

	"github.com/neri/maystorm-wasm/opcode"
)

// execConversion implements the numeric conversion family (spec §4.4):
// wrap, extend, truncate float-to-int, convert int-to-float, demote,
// promote and the four bit-pattern reinterprets. Truncation traps
// InvalidParameter on NaN or a magnitude outside the target integer's
// range rather than producing Go's platform-defined overflow behavior,
// since the source format leaves that conversion undefined.
func execConversion(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	switch op {
	case opcode.I32WrapI64:
		stack[sp-1] = uint64(uint32(stack[sp-1]))
		return sp, nil

	case opcode.I64ExtendI32S:
		stack[sp-1] = uint64(int64(int32(uint32(stack[sp-1]))))
		return sp, nil
	case opcode.I64ExtendI32U:
		stack[sp-1] = uint64(uint32(stack[sp-1]))
		return sp, nil

	case opcode.I32TruncF32S:
		return truncFloatToInt32(stack, sp, truncF32(stack[sp-1]), true)
	case opcode.I32TruncF32U:
		return truncFloatToInt32(stack, sp, truncF32(stack[sp-1]), false)
	case opcode.I32TruncF64S:
		return truncFloatToInt32(stack, sp, truncF64(stack[sp-1]), true)
	case opcode.I32TruncF64U:
		return truncFloatToInt32(stack, sp, truncF64(stack[sp-1]), false)
	case opcode.I64TruncF32S:
		return truncFloatToInt64(stack, sp, truncF32(stack[sp-1]), true)
	case opcode.I64TruncF32U:
		return truncFloatToInt64(stack, sp, truncF32(stack[sp-1]), false)
	case opcode.I64TruncF64S:
		return truncFloatToInt64(stack, sp, truncF64(stack[sp-1]), true)
	case opcode.I64TruncF64U:
		return truncFloatToInt64(stack, sp, truncF64(stack[sp-1]), false)

	case opcode.F32ConvertI32S:
		stack[sp-1] = uint64(math.Float32bits(float32(int32(uint32(stack[sp-1])))))
		return sp, nil
	case opcode.F32ConvertI32U:
		stack[sp-1] = uint64(math.Float32bits(float32(uint32(stack[sp-1]))))
		return sp, nil
	case opcode.F32ConvertI64S:
		stack[sp-1] = uint64(math.Float32bits(float32(int64(stack[sp-1]))))
		return sp, nil
	case opcode.F32ConvertI64U:
		stack[sp-1] = uint64(math.Float32bits(float32(stack[sp-1])))
		return sp, nil
	case opcode.F64ConvertI32S:
		stack[sp-1] = math.Float64bits(float64(int32(uint32(stack[sp-1]))))
		return sp, nil
	case opcode.F64ConvertI32U:
		stack[sp-1] = math.Float64bits(float64(uint32(stack[sp-1])))
		return sp, nil
	case opcode.F64ConvertI64S:
		stack[sp-1] = math.Float64bits(float64(int64(stack[sp-1])))
		return sp, nil
	case opcode.F64ConvertI64U:
		stack[sp-1] = math.Float64bits(float64(stack[sp-1]))
		return sp, nil

	case opcode.F32DemoteF64:
		stack[sp-1] = uint64(math.Float32bits(float32(math.Float64frombits(stack[sp-1]))))
		return sp, nil
	case opcode.F64PromoteF32:
		stack[sp-1] = math.Float64bits(float64(math.Float32frombits(uint32(stack[sp-1]))))
		return sp, nil

	case opcode.I32ReinterpretF32:
		// bit pattern already matches; nothing to do beyond the type tag
		// the validator tracked, which the interpreter doesn't carry.
		return sp, nil
	case opcode.I64ReinterpretF64:
		return sp, nil
	case opcode.F32ReinterpretI32:
		return sp, nil
	case opcode.F64ReinterpretI64:
		return sp, nil
	}
	return sp, trap(NotSupported)
}

func truncF32(bits uint64) float64 { return float64(math.Float32frombits(uint32(bits))) }
func truncF64(bits uint64) float64 { return math.Float64frombits(bits) }

// truncFloatToInt32 truncates v toward zero into an i32, trapping on
// NaN or a magnitude outside the signed/unsigned 32-bit range. Every
// bound here is exactly representable in float64, so direct
// comparison against the literal is safe.
func truncFloatToInt32(stack []uint64, sp int, v float64, signed bool) (int, error) {
	if math.IsNaN(v) {
		return sp, trap(InvalidParameter)
	}
	t := math.Trunc(v)
	if signed {
		if t < -2147483648 || t > 2147483647 {
			return sp, trap(InvalidParameter)
		}
		stack[sp-1] = uint64(uint32(int32(t)))
	} else {
		if t < 0 || t > 4294967295 {
			return sp, trap(InvalidParameter)
		}
		stack[sp-1] = uint64(uint32(t))
	}
	return sp, nil
}

// truncFloatToInt64 truncates v toward zero into an i64. The largest
// signed/unsigned 64-bit values (2^63-1, 2^64-1) are not representable
// in float64, so the upper check compares against the exactly
// representable powers of two 2^63 and 2^64 and excludes them (>=).
func truncFloatToInt64(stack []uint64, sp int, v float64, signed bool) (int, error) {
	if math.IsNaN(v) {
		return sp, trap(InvalidParameter)
	}
	t := math.Trunc(v)
	if signed {
		if t < -9223372036854775808.0 || t >= 9223372036854775808.0 {
			return sp, trap(InvalidParameter)
		}
		stack[sp-1] = uint64(int64(t))
	} else {
		if t < 0 || t >= 18446744073709551616.0 {
			return sp, trap(InvalidParameter)
		}
		stack[sp-1] = uint64(t)
	}
	return sp, nil
}
