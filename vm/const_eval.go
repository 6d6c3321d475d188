package vm

import (
	"github.com/neri/maystorm-wasm/bytestream"
	"github.com/neri/maystorm-wasm/value"
	"github.com/neri/maystorm-wasm/wasm"
)

// evalConstExpr evaluates the restricted constant-expression grammar this
// runtime accepts for global initializers and element/data segment
// offsets: exactly `i32.const <n> end` or `i64.const <n> end`. This is
// strictly narrower than wasm.readConstExpr, which tolerates f32/f64
// consts and global.get purely to consume well-formed bytes while
// decoding; evaluation enforces the tighter rule a global/offset
// initializer actually needs.
func evalConstExpr(raw []byte) (value.Value, error) {
	r := bytestream.NewReader(raw)
	op, err := r.ReadByte()
	if err != nil {
		return value.Value{}, &wasm.DecodeError{Kind: wasm.UnexpectedEOF, Pos: r.Pos()}
	}
	var v value.Value
	switch op {
	case 0x41: // i32.const
		n, err := r.ReadSigned()
		if err != nil {
			return value.Value{}, err
		}
		v = value.I32Value(int32(n))
	case 0x42: // i64.const
		n, err := r.ReadSigned()
		if err != nil {
			return value.Value{}, err
		}
		v = value.I64Value(n)
	default:
		return value.Value{}, &wasm.DecodeError{Kind: wasm.UnexpectedToken, Pos: r.Pos() - 1}
	}
	end, err := r.ReadByte()
	if err != nil || end != 0x0B {
		return value.Value{}, &wasm.DecodeError{Kind: wasm.UnexpectedToken, Pos: r.Pos()}
	}
	return v, nil
}

func evalOffset(raw []byte) (uint32, error) {
	v, err := evalConstExpr(raw)
	if err != nil {
		return 0, err
	}
	if v.Type != value.I32 {
		return 0, &wasm.DecodeError{Kind: wasm.TypeMismatch, Pos: 0}
	}
	return uint32(v.I32()), nil
}
