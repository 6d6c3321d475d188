// Package ir implements the validator and intermediate-code generator:
// for each function body it simulates an abstract type stack and a
// block/control stack to verify the function is well-typed, emitting a
// flat array of IR instructions (Imc) with branch targets resolved to
// absolute IR indices. A peephole pass then fuses common constant/branch
// pairs before the code block is handed to the interpreter.
//
// This is new code with no direct teacher analogue (the teacher's vm.go
// walked raw Wasm bytecode directly instead of building an IR), grounded
// instead on: the teacher's vm/block.go block-context shape, vm/error.go's
// error-taxonomy convention, and the WasmBlockInfo/max_stack bookkeeping
// of the original Rust validator this module's behavior is modeled on.
package ir

import (
	"fmt"

	"github.com/neri/maystorm-wasm/opcode"
)

// Mnemonic identifies one IR instruction. Values below mnemonicBase name
// an IR-only construct (control markers, fused forms); values at or above
// mnemonicBase wrap a raw Wasm opcode whose execution needs no IR-level
// rewriting — the interpreter dispatches those straight off the
// underlying opcode.Opcode.
type Mnemonic int32

const (
	Nop Mnemonic = iota
	// blockMarker and endMarker name block/end placeholders for String();
	// Generate never emits them (block boundaries are tracked on its
	// control frames instead), so they never appear in a CodeBlock.
	blockMarker
	endMarker

	Br
	BrIf
	BrTable
	// IfFalse pops an i32 condition and jumps to Param1 (an IR index) when
	// it is zero; otherwise execution falls through into the then-branch.
	IfFalse
	// Jmp is an unconditional jump to Param1, emitted where an `else`
	// keyword appears so the then-branch skips over the else-branch.
	Jmp
	Return
	Call
	CallIndirect
	Drop
	Select
	LocalGet
	LocalSet
	LocalTee
	GlobalGet
	GlobalSet

	// Fused forms produced by the peephole pass (spec §4.3). Param1 holds
	// the folded constant (arithmetic fusions) or the fixed-up branch
	// target (eqz+branch fusions).
	FusedI32AddImm
	FusedI32SubImm
	FusedI32AndImm
	FusedI32OrImm
	FusedI32XorImm
	FusedI32ShlImm
	FusedI32ShrSImm
	FusedI32ShrUImm
	FusedI64AddImm
	FusedI64SubImm
	FusedI32BrZ
	FusedI64BrZ
)

// mnemonicBase separates the IR-only mnemonics above from the
// passthrough range that simply wraps a opcode.Opcode value.
const mnemonicBase Mnemonic = 0x1000

// fromOpcode wraps a raw Wasm opcode as a passthrough mnemonic. Used for
// every instruction whose runtime behavior needs no IR rewriting:
// arithmetic, comparisons, conversions, sign-extensions, consts, and all
// memory load/store forms.
func fromOpcode(op opcode.Opcode) Mnemonic { return mnemonicBase + Mnemonic(op) }

// AsOpcode returns the wrapped Wasm opcode for a passthrough mnemonic.
func (m Mnemonic) AsOpcode() (opcode.Opcode, bool) {
	if m >= mnemonicBase && m <= mnemonicBase+0xFF {
		return opcode.Opcode(m - mnemonicBase), true
	}
	return 0, false
}

func (m Mnemonic) String() string {
	if op, ok := m.AsOpcode(); ok {
		return op.String()
	}
	switch m {
	case Nop:
		return "nop"
	case blockMarker:
		return "<block>"
	case endMarker:
		return "<end>"
	case Br:
		return "br"
	case BrIf:
		return "br_if"
	case BrTable:
		return "br_table"
	case IfFalse:
		return "if_false"
	case Jmp:
		return "jmp"
	case Return:
		return "return"
	case Call:
		return "call"
	case CallIndirect:
		return "call_indirect"
	case Drop:
		return "drop"
	case Select:
		return "select"
	case LocalGet:
		return "local.get"
	case LocalSet:
		return "local.set"
	case LocalTee:
		return "local.tee"
	case GlobalGet:
		return "global.get"
	case GlobalSet:
		return "global.set"
	case FusedI32AddImm:
		return "fused.i32.add_imm"
	case FusedI32SubImm:
		return "fused.i32.sub_imm"
	case FusedI32AndImm:
		return "fused.i32.and_imm"
	case FusedI32OrImm:
		return "fused.i32.or_imm"
	case FusedI32XorImm:
		return "fused.i32.xor_imm"
	case FusedI32ShlImm:
		return "fused.i32.shl_imm"
	case FusedI32ShrSImm:
		return "fused.i32.shr_s_imm"
	case FusedI32ShrUImm:
		return "fused.i32.shr_u_imm"
	case FusedI64AddImm:
		return "fused.i64.add_imm"
	case FusedI64SubImm:
		return "fused.i64.sub_imm"
	case FusedI32BrZ:
		return "fused.i32.br_z"
	case FusedI64BrZ:
		return "fused.i64.br_z"
	default:
		return fmt.Sprintf("mnemonic(%d)", int32(m))
	}
}
