// Package value defines the Wasm value universe shared by the loader,
// validator and interpreter: the four MVP value types and the tagged
// union that carries a concrete typed value across the public API.
package value

import "fmt"

// ValueType is one of the four Wasm 1.0 value types.
type ValueType int8

const (
	I32 ValueType = iota
	I64
	F32
	F64
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valtype(%d)", int8(t))
	}
}

// ByteSize is the width of t once stored in linear memory.
func (t ValueType) ByteSize() int {
	switch t {
	case I32, F32:
		return 4
	case I64, F64:
		return 8
	default:
		return 0
	}
}

// BlockType is the signature of a structured control instruction: either
// Empty, or a single result value type (the MVP does not support
// multi-value blocks).
type BlockType struct {
	HasResult bool
	Result    ValueType
}

// EmptyBlockType is the block type carrying no result.
var EmptyBlockType = BlockType{}

// ResultBlockType builds a BlockType yielding a single value of t.
func ResultBlockType(t ValueType) BlockType {
	return BlockType{HasResult: true, Result: t}
}

// Value is a type-erased, tagged container for a single Wasm value. It is
// the currency of the public API (arguments in, results out); inside the
// interpreter, values live in a raw 64-bit stack slot instead (a plain
// uint64 in package vm) to avoid the tag overhead on the hot path.
type Value struct {
	Type ValueType
	bits uint64
}

// I32Value constructs an i32 value.
func I32Value(v int32) Value { return Value{Type: I32, bits: uint64(uint32(v))} }

// I64Value constructs an i64 value.
func I64Value(v int64) Value { return Value{Type: I64, bits: uint64(v)} }

// F32Value constructs an f32 value.
func F32Value(v float32) Value { return Value{Type: F32, bits: uint64(f32bits(v))} }

// F64Value constructs an f64 value.
func F64Value(v float64) Value { return Value{Type: F64, bits: f64bits(v)} }

// I32 returns the value as an i32, regardless of its declared type.
func (v Value) I32() int32 { return int32(uint32(v.bits)) }

// I64 returns the value as an i64.
func (v Value) I64() int64 { return int64(v.bits) }

// F32 returns the value as an f32.
func (v Value) F32() float32 { return f32frombits(uint32(v.bits)) }

// F64 returns the value as an f64.
func (v Value) F64() float64 { return f64frombits(v.bits) }

// Bits returns the raw 64-bit pattern backing the value.
func (v Value) Bits() uint64 { return v.bits }

// FromBits reconstructs a typed Value from a raw stack slot, the
// interpreter's type-erased 64-bit runtime representation (spec §3
// "StackValue"). The caller supplies t from validated context (a local's
// declared type, a global's declared type, a callee signature) since the
// raw bits alone carry no type tag.
func FromBits(t ValueType, bits uint64) Value { return Value{Type: t, bits: bits} }

func (v Value) String() string {
	switch v.Type {
	case I32:
		return fmt.Sprintf("i32:%d", v.I32())
	case I64:
		return fmt.Sprintf("i64:%d", v.I64())
	case F32:
		return fmt.Sprintf("f32:%v", v.F32())
	case F64:
		return fmt.Sprintf("f64:%v", v.F64())
	default:
		return "invalid"
	}
}
