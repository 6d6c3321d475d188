package vm

import (
	"math/bits"

	"github.com/neri/maystorm-wasm/opcode"
)

// execI32 implements every i32 arithmetic, bitwise and comparison
// instruction. Arithmetic is wrapping per spec §4.4; shifts and
// rotates take their amount modulo 32. Go's shift operator does not
// reduce the count (a uint32 shifted by 32 or more yields 0), so the
// masks below do the modulo reduction explicitly.
func execI32(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	if op == opcode.I32Eqz || op == opcode.I32Clz || op == opcode.I32Ctz ||
		op == opcode.I32Popcnt || op == opcode.I32Extend8S || op == opcode.I32Extend16S {
		a := uint32(stack[sp-1])
		var r uint32
		switch op {
		case opcode.I32Eqz:
			if a == 0 {
				r = 1
			}
		case opcode.I32Clz:
			r = uint32(bits.LeadingZeros32(a))
		case opcode.I32Ctz:
			r = uint32(bits.TrailingZeros32(a))
		case opcode.I32Popcnt:
			r = uint32(bits.OnesCount32(a))
		case opcode.I32Extend8S:
			r = uint32(int32(int8(a)))
		case opcode.I32Extend16S:
			r = uint32(int32(int16(a)))
		}
		stack[sp-1] = uint64(r)
		return sp, nil
	}

	b := int32(uint32(stack[sp-1]))
	a := int32(uint32(stack[sp-2]))
	ub, ua := uint32(b), uint32(a)
	sp--
	var r uint32
	switch op {
	case opcode.I32Eq:
		r = boolU32(a == b)
	case opcode.I32Ne:
		r = boolU32(a != b)
	case opcode.I32LtS:
		r = boolU32(a < b)
	case opcode.I32LtU:
		r = boolU32(ua < ub)
	case opcode.I32GtS:
		r = boolU32(a > b)
	case opcode.I32GtU:
		r = boolU32(ua > ub)
	case opcode.I32LeS:
		r = boolU32(a <= b)
	case opcode.I32LeU:
		r = boolU32(ua <= ub)
	case opcode.I32GeS:
		r = boolU32(a >= b)
	case opcode.I32GeU:
		r = boolU32(ua >= ub)
	case opcode.I32Add:
		r = ua + ub
	case opcode.I32Sub:
		r = ua - ub
	case opcode.I32Mul:
		r = ua * ub
	case opcode.I32DivS:
		if b == 0 {
			return sp, trap(DivideByZero)
		}
		if a == -2147483648 && b == -1 {
			return sp, trap(DivideByZero)
		}
		r = uint32(a / b)
	case opcode.I32DivU:
		if ub == 0 {
			return sp, trap(DivideByZero)
		}
		r = ua / ub
	case opcode.I32RemS:
		if b == 0 {
			return sp, trap(DivideByZero)
		}
		if a == -2147483648 && b == -1 {
			r = 0
		} else {
			r = uint32(a % b)
		}
	case opcode.I32RemU:
		if ub == 0 {
			return sp, trap(DivideByZero)
		}
		r = ua % ub
	case opcode.I32And:
		r = ua & ub
	case opcode.I32Or:
		r = ua | ub
	case opcode.I32Xor:
		r = ua ^ ub
	case opcode.I32Shl:
		r = ua << (ub & 31)
	case opcode.I32ShrS:
		r = uint32(a >> (ub & 31))
	case opcode.I32ShrU:
		r = ua >> (ub & 31)
	case opcode.I32Rotl:
		r = bits.RotateLeft32(ua, int(ub&31))
	case opcode.I32Rotr:
		r = bits.RotateLeft32(ua, -int(ub&31))
	default:
		return sp, trap(NotSupported)
	}
	stack[sp-1] = uint64(r)
	return sp, nil
}

// execI64 mirrors execI32 at double width; i64.eqz is the one i64
// comparison that produces an i32 result, same as the MVP spec.
func execI64(op opcode.Opcode, stack []uint64, sp int) (int, error) {
	if op == opcode.I64Eqz || op == opcode.I64Clz || op == opcode.I64Ctz ||
		op == opcode.I64Popcnt || op == opcode.I64Extend8S || op == opcode.I64Extend16S || op == opcode.I64Extend32S {
		a := stack[sp-1]
		var r uint64
		switch op {
		case opcode.I64Eqz:
			r = uint64(boolU32(a == 0))
		case opcode.I64Clz:
			r = uint64(bits.LeadingZeros64(a))
		case opcode.I64Ctz:
			r = uint64(bits.TrailingZeros64(a))
		case opcode.I64Popcnt:
			r = uint64(bits.OnesCount64(a))
		case opcode.I64Extend8S:
			r = uint64(int64(int8(a)))
		case opcode.I64Extend16S:
			r = uint64(int64(int16(a)))
		case opcode.I64Extend32S:
			r = uint64(int64(int32(a)))
		}
		stack[sp-1] = r
		return sp, nil
	}

	b := int64(stack[sp-1])
	a := int64(stack[sp-2])
	ub, ua := uint64(b), uint64(a)
	sp--
	var r uint64
	switch op {
	case opcode.I64Eq:
		r = uint64(boolU32(a == b))
	case opcode.I64Ne:
		r = uint64(boolU32(a != b))
	case opcode.I64LtS:
		r = uint64(boolU32(a < b))
	case opcode.I64LtU:
		r = uint64(boolU32(ua < ub))
	case opcode.I64GtS:
		r = uint64(boolU32(a > b))
	case opcode.I64GtU:
		r = uint64(boolU32(ua > ub))
	case opcode.I64LeS:
		r = uint64(boolU32(a <= b))
	case opcode.I64LeU:
		r = uint64(boolU32(ua <= ub))
	case opcode.I64GeS:
		r = uint64(boolU32(a >= b))
	case opcode.I64GeU:
		r = uint64(boolU32(ua >= ub))
	case opcode.I64Add:
		r = ua + ub
	case opcode.I64Sub:
		r = ua - ub
	case opcode.I64Mul:
		r = ua * ub
	case opcode.I64DivS:
		if b == 0 {
			return sp, trap(DivideByZero)
		}
		if a == -9223372036854775808 && b == -1 {
			return sp, trap(DivideByZero)
		}
		r = uint64(a / b)
	case opcode.I64DivU:
		if ub == 0 {
			return sp, trap(DivideByZero)
		}
		r = ua / ub
	case opcode.I64RemS:
		if b == 0 {
			return sp, trap(DivideByZero)
		}
		if a == -9223372036854775808 && b == -1 {
			r = 0
		} else {
			r = uint64(a % b)
		}
	case opcode.I64RemU:
		if ub == 0 {
			return sp, trap(DivideByZero)
		}
		r = ua % ub
	case opcode.I64And:
		r = ua & ub
	case opcode.I64Or:
		r = ua | ub
	case opcode.I64Xor:
		r = ua ^ ub
	case opcode.I64Shl:
		r = ua << (ub & 63)
	case opcode.I64ShrS:
		r = uint64(a >> (ub & 63))
	case opcode.I64ShrU:
		r = ua >> (ub & 63)
	case opcode.I64Rotl:
		r = bits.RotateLeft64(ua, int(ub&63))
	case opcode.I64Rotr:
		r = bits.RotateLeft64(ua, -int(ub&63))
	default:
		return sp, trap(NotSupported)
	}
	stack[sp-1] = r
	return sp, nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
