package ir

import (
	"github.com/neri/maystorm-wasm/opcode"
	"github.com/neri/maystorm-wasm/value"
)

// opSig describes the operand/result shape of one passthrough opcode:
// arithmetic, comparison, conversion and sign-extension instructions all
// pop a fixed number of typed operands and push at most one typed result.
// Control, memory, variable-access and constant instructions are handled
// specially in the validator and are not listed here.
type opSig struct {
	in1, in2 value.ValueType
	hasIn2   bool
	out      value.ValueType
	hasOut   bool
}

func unary(in, out value.ValueType) opSig  { return opSig{in1: in, out: out, hasOut: true} }
func binary(in, out value.ValueType) opSig { return opSig{in1: in, in2: in, hasIn2: true, out: out, hasOut: true} }
func cmp(in value.ValueType) opSig         { return binary(in, value.I32) }

var opSigs = map[opcode.Opcode]opSig{
	// i32
	opcode.I32Clz: unary(value.I32, value.I32), opcode.I32Ctz: unary(value.I32, value.I32),
	opcode.I32Popcnt: unary(value.I32, value.I32), opcode.I32Eqz: unary(value.I32, value.I32),
	opcode.I32Extend8S: unary(value.I32, value.I32), opcode.I32Extend16S: unary(value.I32, value.I32),
	opcode.I32Add: binary(value.I32, value.I32), opcode.I32Sub: binary(value.I32, value.I32),
	opcode.I32Mul: binary(value.I32, value.I32), opcode.I32DivS: binary(value.I32, value.I32),
	opcode.I32DivU: binary(value.I32, value.I32), opcode.I32RemS: binary(value.I32, value.I32),
	opcode.I32RemU: binary(value.I32, value.I32), opcode.I32And: binary(value.I32, value.I32),
	opcode.I32Or: binary(value.I32, value.I32), opcode.I32Xor: binary(value.I32, value.I32),
	opcode.I32Shl: binary(value.I32, value.I32), opcode.I32ShrS: binary(value.I32, value.I32),
	opcode.I32ShrU: binary(value.I32, value.I32), opcode.I32Rotl: binary(value.I32, value.I32),
	opcode.I32Rotr: binary(value.I32, value.I32),
	opcode.I32Eq:   cmp(value.I32), opcode.I32Ne: cmp(value.I32), opcode.I32LtS: cmp(value.I32),
	opcode.I32LtU: cmp(value.I32), opcode.I32GtS: cmp(value.I32), opcode.I32GtU: cmp(value.I32),
	opcode.I32LeS: cmp(value.I32), opcode.I32LeU: cmp(value.I32), opcode.I32GeS: cmp(value.I32),
	opcode.I32GeU: cmp(value.I32),

	// i64
	opcode.I64Clz: unary(value.I64, value.I64), opcode.I64Ctz: unary(value.I64, value.I64),
	opcode.I64Popcnt: unary(value.I64, value.I64),
	opcode.I64Extend8S: unary(value.I64, value.I64), opcode.I64Extend16S: unary(value.I64, value.I64),
	opcode.I64Extend32S: unary(value.I64, value.I64),
	opcode.I64Eqz:       unary(value.I64, value.I32),
	opcode.I64Add: binary(value.I64, value.I64), opcode.I64Sub: binary(value.I64, value.I64),
	opcode.I64Mul: binary(value.I64, value.I64), opcode.I64DivS: binary(value.I64, value.I64),
	opcode.I64DivU: binary(value.I64, value.I64), opcode.I64RemS: binary(value.I64, value.I64),
	opcode.I64RemU: binary(value.I64, value.I64), opcode.I64And: binary(value.I64, value.I64),
	opcode.I64Or: binary(value.I64, value.I64), opcode.I64Xor: binary(value.I64, value.I64),
	opcode.I64Shl: binary(value.I64, value.I64), opcode.I64ShrS: binary(value.I64, value.I64),
	opcode.I64ShrU: binary(value.I64, value.I64), opcode.I64Rotl: binary(value.I64, value.I64),
	opcode.I64Rotr: binary(value.I64, value.I64),
	opcode.I64Eq:   cmp(value.I64), opcode.I64Ne: cmp(value.I64), opcode.I64LtS: cmp(value.I64),
	opcode.I64LtU: cmp(value.I64), opcode.I64GtS: cmp(value.I64), opcode.I64GtU: cmp(value.I64),
	opcode.I64LeS: cmp(value.I64), opcode.I64LeU: cmp(value.I64), opcode.I64GeS: cmp(value.I64),
	opcode.I64GeU: cmp(value.I64),

	// f32
	opcode.F32Abs: unary(value.F32, value.F32), opcode.F32Neg: unary(value.F32, value.F32),
	opcode.F32Ceil: unary(value.F32, value.F32), opcode.F32Floor: unary(value.F32, value.F32),
	opcode.F32Trunc: unary(value.F32, value.F32), opcode.F32Nearest: unary(value.F32, value.F32),
	opcode.F32Sqrt: unary(value.F32, value.F32),
	opcode.F32Add: binary(value.F32, value.F32), opcode.F32Sub: binary(value.F32, value.F32),
	opcode.F32Mul: binary(value.F32, value.F32), opcode.F32Div: binary(value.F32, value.F32),
	opcode.F32Min: binary(value.F32, value.F32), opcode.F32Max: binary(value.F32, value.F32),
	opcode.F32Copysign: binary(value.F32, value.F32),
	opcode.F32Eq:        cmp(value.F32), opcode.F32Ne: cmp(value.F32), opcode.F32Lt: cmp(value.F32),
	opcode.F32Gt: cmp(value.F32), opcode.F32Le: cmp(value.F32), opcode.F32Ge: cmp(value.F32),

	// f64
	opcode.F64Abs: unary(value.F64, value.F64), opcode.F64Neg: unary(value.F64, value.F64),
	opcode.F64Ceil: unary(value.F64, value.F64), opcode.F64Floor: unary(value.F64, value.F64),
	opcode.F64Trunc: unary(value.F64, value.F64), opcode.F64Nearest: unary(value.F64, value.F64),
	opcode.F64Sqrt: unary(value.F64, value.F64),
	opcode.F64Add: binary(value.F64, value.F64), opcode.F64Sub: binary(value.F64, value.F64),
	opcode.F64Mul: binary(value.F64, value.F64), opcode.F64Div: binary(value.F64, value.F64),
	opcode.F64Min: binary(value.F64, value.F64), opcode.F64Max: binary(value.F64, value.F64),
	opcode.F64Copysign: binary(value.F64, value.F64),
	opcode.F64Eq:        cmp(value.F64), opcode.F64Ne: cmp(value.F64), opcode.F64Lt: cmp(value.F64),
	opcode.F64Gt: cmp(value.F64), opcode.F64Le: cmp(value.F64), opcode.F64Ge: cmp(value.F64),

	// conversions
	opcode.I32WrapI64:    unary(value.I64, value.I32),
	opcode.I32TruncF32S:  unary(value.F32, value.I32),
	opcode.I32TruncF32U:  unary(value.F32, value.I32),
	opcode.I32TruncF64S:  unary(value.F64, value.I32),
	opcode.I32TruncF64U:  unary(value.F64, value.I32),
	opcode.I64ExtendI32S: unary(value.I32, value.I64),
	opcode.I64ExtendI32U: unary(value.I32, value.I64),
	opcode.I64TruncF32S:  unary(value.F32, value.I64),
	opcode.I64TruncF32U:  unary(value.F32, value.I64),
	opcode.I64TruncF64S:  unary(value.F64, value.I64),
	opcode.I64TruncF64U:  unary(value.F64, value.I64),
	opcode.F32ConvertI32S: unary(value.I32, value.F32),
	opcode.F32ConvertI32U: unary(value.I32, value.F32),
	opcode.F32ConvertI64S: unary(value.I64, value.F32),
	opcode.F32ConvertI64U: unary(value.I64, value.F32),
	opcode.F32DemoteF64:    unary(value.F64, value.F32),
	opcode.F64ConvertI32S: unary(value.I32, value.F64),
	opcode.F64ConvertI32U: unary(value.I32, value.F64),
	opcode.F64ConvertI64S: unary(value.I64, value.F64),
	opcode.F64ConvertI64U: unary(value.I64, value.F64),
	opcode.F64PromoteF32:   unary(value.F32, value.F64),
	opcode.I32ReinterpretF32: unary(value.F32, value.I32),
	opcode.I64ReinterpretF64: unary(value.F64, value.I64),
	opcode.F32ReinterpretI32: unary(value.I32, value.F32),
	opcode.F64ReinterpretI64: unary(value.I64, value.F64),
}
