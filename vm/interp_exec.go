package vm

import (
	"github.com/neri/maystorm-wasm/ir"
	"github.com/neri/maystorm-wasm/opcode"
)

// execOpcode dispatches every passthrough mnemonic — arithmetic,
// comparison, conversion, sign-extension, constant and memory
// instructions — that the IR emits unchanged from its source
// opcode.Opcode (spec §4.3's "passthrough range"). Control flow, calls,
// locals/globals and the peephole-fused forms are handled directly in
// run's outer switch since they need more than a stack effect.
func (m *Module) execOpcode(op opcode.Opcode, instr ir.Imc, stack []uint64, sp int) (int, error) {
	switch {
	case op == opcode.Unreachable:
		return sp, trap(Unreachable)
	case op == opcode.Nop:
		return sp, nil

	case op == opcode.I32Const:
		stack[sp] = uint64(uint32(instr.Param1))
		return sp + 1, nil
	case op == opcode.I64Const:
		stack[sp] = uint64(instr.Param1)
		return sp + 1, nil
	case op == opcode.F32Const, op == opcode.F64Const:
		if !floatEnabled {
			return sp, trap(NotSupported)
		}
		stack[sp] = uint64(instr.Param1)
		return sp + 1, nil

	case opcode.IsMemoryOp(op):
		return m.execMemOp(op, instr, stack, sp)

	case isI32ArithOrCmp(op):
		return execI32(op, stack, sp)
	case isI64ArithOrCmp(op):
		return execI64(op, stack, sp)
	case isFloatOp(op):
		if !floatEnabled {
			return sp, trap(NotSupported)
		}
		return execFloat(op, stack, sp)

	case isConversion(op):
		if !floatEnabled && op != opcode.I32WrapI64 && op != opcode.I64ExtendI32S && op != opcode.I64ExtendI32U {
			return sp, trap(NotSupported)
		}
		return execConversion(op, stack, sp)
	}

	return sp, trap(NotSupported)
}

func isI32ArithOrCmp(op opcode.Opcode) bool {
	return (op >= opcode.I32Eqz && op <= opcode.I32GeU) ||
		(op >= opcode.I32Clz && op <= opcode.I32Rotr) ||
		op == opcode.I32Extend8S || op == opcode.I32Extend16S
}

func isI64ArithOrCmp(op opcode.Opcode) bool {
	return (op >= opcode.I64Eqz && op <= opcode.I64GeU) ||
		(op >= opcode.I64Clz && op <= opcode.I64Rotr) ||
		op == opcode.I64Extend8S || op == opcode.I64Extend16S || op == opcode.I64Extend32S
}

func isFloatOp(op opcode.Opcode) bool {
	switch {
	case op >= opcode.F32Eq && op <= opcode.F64Ge:
		return true
	case op >= opcode.F32Abs && op <= opcode.F64Copysign:
		return true
	case op == opcode.F32Const || op == opcode.F64Const:
		return true
	}
	return false
}

func isConversion(op opcode.Opcode) bool {
	return op >= opcode.I32WrapI64 && op <= opcode.F64ReinterpretI64
}
