package vm

import (
	"github.com/neri/maystorm-wasm/ir"
	"github.com/neri/maystorm-wasm/opcode"
)

// execMemOp implements every load/store instruction plus memory.size
// and memory.grow, all against the instance's first (and this
// runtime's only) linear memory. instr.Param1 carries the memarg
// offset the validator already parsed; alignment is a performance hint
// this interpreter doesn't act on and was discarded at validation time.
func (m *Module) execMemOp(op opcode.Opcode, instr ir.Imc, stack []uint64, sp int) (int, error) {
	if op == opcode.MemorySize {
		stack[sp] = uint64(uint32(m.Memory0().Pages()))
		return sp + 1, nil
	}
	if op == opcode.MemoryGrow {
		delta := uint32(stack[sp-1])
		stack[sp-1] = uint64(uint32(m.Memory0().Grow(delta)))
		return sp, nil
	}

	if (op == opcode.F32Load || op == opcode.F64Load || op == opcode.F32Store || op == opcode.F64Store) && !floatEnabled {
		return sp, trap(NotSupported)
	}

	mem := m.Memory0()
	offset := uint32(instr.Param1)

	if opcode.IsStore(op) {
		val := stack[sp-1]
		base := uint32(stack[sp-2])
		sp -= 2
		var width uint32
		switch op {
		case opcode.I32Store8, opcode.I64Store8:
			width = 1
		case opcode.I32Store16, opcode.I64Store16:
			width = 2
		case opcode.I32Store, opcode.F32Store, opcode.I64Store32:
			width = 4
		case opcode.I64Store, opcode.F64Store:
			width = 8
		}
		addr, err := effectiveAddr(mem, base, offset, width)
		if err != nil {
			return sp, err
		}
		if err := mem.write(addr, width, val); err != nil {
			return sp, err
		}
		return sp, nil
	}

	base := uint32(stack[sp-1])
	var width uint32
	signed := false
	switch op {
	case opcode.I32Load8S:
		width, signed = 1, true
	case opcode.I32Load8U, opcode.I64Load8U:
		width = 1
	case opcode.I64Load8S:
		width, signed = 1, true
	case opcode.I32Load16S:
		width, signed = 2, true
	case opcode.I32Load16U, opcode.I64Load16U:
		width = 2
	case opcode.I64Load16S:
		width, signed = 2, true
	case opcode.I32Load, opcode.F32Load, opcode.I64Load32U:
		width = 4
	case opcode.I64Load32S:
		width, signed = 4, true
	case opcode.I64Load, opcode.F64Load:
		width = 8
	}
	addr, err := effectiveAddr(mem, base, offset, width)
	if err != nil {
		return sp, err
	}
	raw, err := mem.read(addr, width)
	if err != nil {
		return sp, err
	}
	v := raw
	if signed {
		v = signExtend(raw, width)
	}
	stack[sp-1] = v
	return sp, nil
}

// effectiveAddr computes a load/store's effective address as the u64
// sum of the base index and the memarg offset (spec §4.4), checking it
// against the memory's real size before narrowing to the uint32 the
// byte-slice indexing needs. Computing the sum in uint32 first would let
// a base near 2^32 wrap into a small, wrongly in-bounds address.
func effectiveAddr(mem *Memory, base, offset, width uint32) (uint32, error) {
	addr64 := uint64(base) + uint64(offset)
	if !mem.bounds64(addr64, width) {
		return 0, trap(OutOfBounds)
	}
	return uint32(addr64), nil
}

// signExtend sign-extends the low width*8 bits of raw to fill a 64-bit
// slot, used by the *8S/*16S/*32S load variants.
func signExtend(raw uint64, width uint32) uint64 {
	shift := 64 - width*8
	return uint64(int64(raw<<shift) >> shift)
}
