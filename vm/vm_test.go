package vm

import (
	"testing"

	"github.com/neri/maystorm-wasm/value"
	"github.com/neri/maystorm-wasm/wasm"
)

// The helpers below hand-assemble minimal Wasm binaries the same way
// package wasm's own decode tests do, so this package's tests exercise
// the full Instantiate -> Generate -> interpret pipeline without needing
// an external wat2wasm toolchain.

func uleb(n int) []byte {
	var out []byte
	u := uint32(n)
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

// sleb encodes n as signed LEB128, the form every *.const opcode's
// immediate uses.
func sleb(n int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(len(body))...)
	return append(out, body...)
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func funcType(params, results []byte) []byte {
	b := []byte{0x60}
	b = append(b, uleb(len(params))...)
	b = append(b, params...)
	b = append(b, uleb(len(results))...)
	b = append(b, results...)
	return b
}

func exportEntry(name string, idx int) []byte {
	b := uleb(len(name))
	b = append(b, []byte(name)...)
	b = append(b, 0x00) // kind: func
	b = append(b, uleb(idx)...)
	return b
}

// codeEntry wraps one function's raw instruction bytes with a
// (no-locals) locals-declaration count and a leading size prefix, ready
// to append into a code section body.
func codeEntry(code []byte) []byte {
	body := append([]byte{0x00}, code...) // zero local-decl entries
	return append(uleb(len(body)), body...)
}

// buildModule assembles a one-function-type module: every function in
// codes shares sig, each export in exports binds a name to a function
// index.
func buildModule(sig []byte, codes [][]byte, exports map[string]int) []byte {
	typeSec := section(wasm.SecType, append(uleb(1), sig...))

	funcBody := uleb(len(codes))
	for range codes {
		funcBody = append(funcBody, 0x00) // every function uses type index 0
	}
	funcSec := section(wasm.SecFunction, funcBody)

	expBody := uleb(len(exports))
	for name, idx := range exports {
		expBody = append(expBody, exportEntry(name, idx)...)
	}
	exportSec := section(wasm.SecExport, expBody)

	codeBody := uleb(len(codes))
	for _, c := range codes {
		codeBody = append(codeBody, c...)
	}
	codeSec := section(wasm.SecCode, codeBody)

	out := header()
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

func noHostImports(module, field string, sig wasm.FuncType) (HostFunc, error) {
	return nil, trapf(InvalidParameter, "unexpected import %s.%s", module, field)
}

func TestI32Add(t *testing.T) {
	sig := funcType([]byte{0x7F, 0x7F}, []byte{0x7F})
	code := []byte{0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B} // local.get 0; local.get 1; i32.add; end
	data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"add": 0})

	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, ok := mod.Func("add")
	if !ok {
		t.Fatal("export \"add\" not found")
	}
	result, err := fn.Invoke(value.I32Value(2), value.I32Value(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.I32() != 5 {
		t.Errorf("2 + 3 = %d, want 5", result.I32())
	}
}

func TestI32DivSTraps(t *testing.T) {
	sig := funcType([]byte{0x7F, 0x7F}, []byte{0x7F})
	code := []byte{0x20, 0x00, 0x20, 0x01, 0x6D, 0x0B} // local.get 0; local.get 1; i32.div_s; end
	data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"div": 0})

	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, _ := mod.Func("div")
	_, err = fn.Invoke(value.I32Value(10), value.I32Value(0))
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("want *RuntimeError, got %v (%T)", err, err)
	}
	if rerr.Kind != DivideByZero {
		t.Errorf("want DivideByZero, got %v", rerr.Kind)
	}
}

// TestLoopSum exercises loop/br_if: it sums 1..n into a local and
// returns it, covering the validator's branch-target fix-up and the
// interpreter's Level-based stack restoration across a backward branch.
func TestLoopSum(t *testing.T) {
	sig := funcType([]byte{0x7F}, []byte{0x7F})
	code := []byte{
		0x41, 0x00, // i32.const 0
		0x21, 0x01, // local.set 1 (sum)
		0x41, 0x00, // i32.const 0
		0x21, 0x02, // local.set 2 (i)
		0x03, 0x40, // loop (blocktype empty)
		0x20, 0x02, // local.get 2 (i)
		0x41, 0x01, // i32.const 1
		0x6A,       // i32.add
		0x21, 0x02, // local.set 2 (i)
		0x20, 0x01, // local.get 1 (sum)
		0x20, 0x02, // local.get 2 (i)
		0x6A,       // i32.add
		0x21, 0x01, // local.set 1 (sum)
		0x20, 0x02, // local.get 2 (i)
		0x20, 0x00, // local.get 0 (n)
		0x48,       // i32.lt_s
		0x0D, 0x00, // br_if 0 (loop)
		0x0B,       // end (loop)
		0x20, 0x01, // local.get 1 (sum)
		0x0B, // end (function)
	}
	// this function declares two i32 locals beyond its single param
	// (sum at index 1, i at index 2); codeEntry's zero-decl wrapper
	// doesn't fit, so build the body by hand.
	body := []byte{0x01, 0x02, 0x7F} // one locals entry: 2 locals of type i32
	body = append(body, code...)
	entry := append(uleb(len(body)), body...)

	data := buildModule(sig, [][]byte{entry}, map[string]int{"sum_to_n": 0})

	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, _ := mod.Func("sum_to_n")
	result, err := fn.Invoke(value.I32Value(5))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.I32() != 15 {
		t.Errorf("sum_to_n(5) = %d, want 15", result.I32())
	}
}

// binOpModule builds a two-param, one-result i32 function applying one
// binary opcode to its two local.get operands.
func binOpModule(op byte, name string) []byte {
	sig := funcType([]byte{0x7F, 0x7F}, []byte{0x7F})
	code := []byte{0x20, 0x00, 0x20, 0x01, op, 0x0B}
	return buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{name: 0})
}

func invokeBinOp(t *testing.T, op byte, name string, a, b int32) int32 {
	t.Helper()
	data := binOpModule(op, name)
	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, ok := mod.Func(name)
	if !ok {
		t.Fatalf("export %q not found", name)
	}
	result, err := fn.Invoke(value.I32Value(a), value.I32Value(b))
	if err != nil {
		t.Fatalf("Invoke(%d, %d): %v", a, b, err)
	}
	return result.I32()
}

func TestI32Sub(t *testing.T) {
	if got := invokeBinOp(t, 0x6B, "sub", 1234, 5678); got != -4444 {
		t.Errorf("1234 - 5678 = %d, want -4444", got)
	}
	deadbeef := uint32(0xDEADBEEF)
	got := invokeBinOp(t, 0x6B, "sub", int32(uint32(0x55555555)), int32(deadbeef))
	if uint32(got) != 0x76a79666 {
		t.Errorf("0x55555555 - 0xDEADBEEF = 0x%x, want 0x76a79666", uint32(got))
	}
}

func TestI32Mul(t *testing.T) {
	if got := invokeBinOp(t, 0x6C, "mul", 1234, 5678); got != 7006652 {
		t.Errorf("1234 * 5678 = %d, want 7006652", got)
	}
}

func TestI32DivS(t *testing.T) {
	cases := []struct{ a, b, want int32 }{
		{7006652, 5678, 1234},
		{42, -6, -7},
		{-42, 6, -7},
		{-42, -6, 7},
	}
	for _, c := range cases {
		if got := invokeBinOp(t, 0x6D, "div_s", c.a, c.b); got != c.want {
			t.Errorf("%d / %d = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestI32DivU(t *testing.T) {
	got := invokeBinOp(t, 0x6E, "div_u", -42, 6)
	if uint32(got) != 715827875 {
		t.Errorf("(u32)-42 / 6 = %d, want 715827875", uint32(got))
	}
}

// TestBrTable exercises a three-way br_table selector nested three
// blocks deep: selector 0 reaches the innermost label, 1 the middle,
// anything >= 2 falls through to the outer (default) label. Each
// landing site returns a distinct constant via an explicit `return`,
// directly regression-testing branchTo's stack-height resolution for
// more than one nesting level.
func TestBrTable(t *testing.T) {
	sig := funcType([]byte{0x7F}, []byte{0x7F})
	code := []byte{0x20, 0x00} // local.get 0 (selector)
	code = append(code, 0x0E, 0x02, 0x00, 0x01, 0x02)
	full := []byte{0x02, 0x40, 0x02, 0x40, 0x02, 0x40} // block; block; block (all empty)
	full = append(full, code...)
	full = append(full, 0x0B) // end innermost block
	full = append(full, 0x41)
	full = append(full, sleb(123)...)
	full = append(full, 0x0F) // return
	full = append(full, 0x0B) // end middle block
	full = append(full, 0x41)
	full = append(full, sleb(456)...)
	full = append(full, 0x0F) // return
	full = append(full, 0x0B) // end outer block
	full = append(full, 0x41)
	full = append(full, sleb(789)...)
	full = append(full, 0x0B) // end function

	data := buildModule(sig, [][]byte{codeEntry(full)}, map[string]int{"dispatch": 0})
	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, _ := mod.Func("dispatch")

	cases := []struct {
		selector int32
		want     int32
	}{
		{0, 123},
		{1, 456},
		{2, 789},
		{99, 789},
	}
	for _, c := range cases {
		result, err := fn.Invoke(value.I32Value(c.selector))
		if err != nil {
			t.Fatalf("Invoke(%d): %v", c.selector, err)
		}
		if result.I32() != c.want {
			t.Errorf("dispatch(%d) = %d, want %d", c.selector, result.I32(), c.want)
		}
	}
}

// TestFactorial exercises an iterative loop/if/br computation (block +
// loop + br_if to exit, br to continue), accumulating into locals the
// way a hand-written Wasm loop would rather than carrying values across
// branches.
func TestFactorial(t *testing.T) {
	sig := funcType([]byte{0x7F}, []byte{0x7F})
	code := []byte{
		0x41, 0x01, 0x21, 0x01, // i32.const 1; local.set 1 (acc)
		0x41, 0x01, 0x21, 0x02, // i32.const 1; local.set 2 (i)
		0x02, 0x40, // block (empty)
		0x03, 0x40, // loop (empty)
		0x20, 0x02, 0x20, 0x00, 0x4A, // local.get 2; local.get 0; i32.gt_s
		0x0D, 0x01, // br_if 1 (exit to block once i > n)
		0x20, 0x01, 0x20, 0x02, 0x6C, 0x21, 0x01, // acc = acc * i
		0x20, 0x02, 0x41, 0x01, 0x6A, 0x21, 0x02, // i = i + 1
		0x0C, 0x00, // br 0 (continue loop)
		0x0B, // end loop
		0x0B, // end block
		0x20, 0x01, // local.get 1 (acc)
		0x0B, // end function
	}
	body := []byte{0x01, 0x02, 0x7F} // 2 i32 locals: acc, i
	body = append(body, code...)
	entry := append(uleb(len(body)), body...)

	data := buildModule(sig, [][]byte{entry}, map[string]int{"factorial": 0})
	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, _ := mod.Func("factorial")

	for _, c := range []struct{ n, want int32 }{{7, 5040}, {10, 3628800}} {
		result, err := fn.Invoke(value.I32Value(c.n))
		if err != nil {
			t.Fatalf("Invoke(%d): %v", c.n, err)
		}
		if result.I32() != c.want {
			t.Errorf("factorial(%d) = %d, want %d", c.n, result.I32(), c.want)
		}
	}
}

// TestFibonacciRecursive exercises `call` recursion: the function calls
// itself (function index 0) twice per non-base case.
func TestFibonacciRecursive(t *testing.T) {
	sig := funcType([]byte{0x7F}, []byte{0x7F})
	code := []byte{
		0x20, 0x00, 0x41, 0x02, 0x48, // local.get 0; i32.const 2; i32.lt_s
		0x04, 0x7F, // if (result i32)
		0x20, 0x00, // local.get 0
		0x05, // else
		0x20, 0x00, 0x41, 0x01, 0x6B, 0x10, 0x00, // local.get 0; i32.const 1; i32.sub; call 0
		0x20, 0x00, 0x41, 0x02, 0x6B, 0x10, 0x00, // local.get 0; i32.const 2; i32.sub; call 0
		0x6A, // i32.add
		0x0B, // end if
		0x0B, // end function
	}
	data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"fib": 0})
	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, _ := mod.Func("fib")

	for _, c := range []struct{ n, want int32 }{{7, 13}, {20, 6765}} {
		result, err := fn.Invoke(value.I32Value(c.n))
		if err != nil {
			t.Fatalf("Invoke(%d): %v", c.n, err)
		}
		if result.I32() != c.want {
			t.Errorf("fib(%d) = %d, want %d", c.n, result.I32(), c.want)
		}
	}
}

// TestSelect exercises select's operand order: val1, val2, cond, in
// that push order, with cond popped first.
func TestSelect(t *testing.T) {
	sig := funcType([]byte{0x7F, 0x7F, 0x7F}, []byte{0x7F})
	code := []byte{0x20, 0x00, 0x20, 0x01, 0x20, 0x02, 0x1B, 0x0B} // local.get 0,1,2; select; end
	data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"pick": 0})
	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, _ := mod.Func("pick")

	result, err := fn.Invoke(value.I32Value(10), value.I32Value(20), value.I32Value(1))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.I32() != 10 {
		t.Errorf("select(10, 20, true) = %d, want 10", result.I32())
	}

	result, err = fn.Invoke(value.I32Value(10), value.I32Value(20), value.I32Value(0))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.I32() != 20 {
		t.Errorf("select(10, 20, false) = %d, want 20", result.I32())
	}
}

// TestSignExtend covers the sign-extension family (spec §4.4): each
// widens a narrower two's-complement field already sitting in a wider
// register-width slot.
func TestSignExtend(t *testing.T) {
	t.Run("i32.extend8_s", func(t *testing.T) {
		sig := funcType([]byte{0x7F}, []byte{0x7F})
		code := []byte{0x20, 0x00, 0xC0, 0x0B}
		data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"f": 0})
		mod, err := Instantiate(data, noHostImports)
		if err != nil {
			t.Fatalf("Instantiate: %v", err)
		}
		fn, _ := mod.Func("f")
		result, err := fn.Invoke(value.I32Value(0xFF))
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if result.I32() != -1 {
			t.Errorf("extend8_s(0xFF) = %d, want -1", result.I32())
		}
	})

	t.Run("i32.extend16_s", func(t *testing.T) {
		sig := funcType([]byte{0x7F}, []byte{0x7F})
		code := []byte{0x20, 0x00, 0xC1, 0x0B}
		data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"f": 0})
		mod, err := Instantiate(data, noHostImports)
		if err != nil {
			t.Fatalf("Instantiate: %v", err)
		}
		fn, _ := mod.Func("f")
		result, err := fn.Invoke(value.I32Value(0xFFFF))
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if result.I32() != -1 {
			t.Errorf("extend16_s(0xFFFF) = %d, want -1", result.I32())
		}
	})

	i64case := func(t *testing.T, op byte, in int64) {
		sig := funcType([]byte{0x7E}, []byte{0x7E})
		code := []byte{0x20, 0x00, op, 0x0B}
		data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"f": 0})
		mod, err := Instantiate(data, noHostImports)
		if err != nil {
			t.Fatalf("Instantiate: %v", err)
		}
		fn, _ := mod.Func("f")
		result, err := fn.Invoke(value.I64Value(in))
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if result.I64() != -1 {
			t.Errorf("extend(0x%x) = %d, want -1", in, result.I64())
		}
	}

	t.Run("i64.extend8_s", func(t *testing.T) { i64case(t, 0xC2, 0xFF) })
	t.Run("i64.extend16_s", func(t *testing.T) { i64case(t, 0xC3, 0xFFFF) })
	t.Run("i64.extend32_s", func(t *testing.T) { i64case(t, 0xC4, 0xFFFFFFFF) })
}

// TestCarriedBranchResult is the branchTo regression the maintainer's
// review pinned down directly: a branch taken while the operand stack
// holds more than the label's arity above its height. The block here
// carries a single i32 result out through `br 0` while an extra value
// (7) sits below the carried one (9) and must be discarded, not summed.
func TestCarriedBranchResult(t *testing.T) {
	sig := funcType(nil, []byte{0x7F})
	code := []byte{0x41} // i32.const 100
	code = append(code, sleb(100)...)
	code = append(code, 0x02, 0x7F) // block (result i32)
	code = append(code, 0x41, 0x07) // i32.const 7
	code = append(code, 0x41, 0x09) // i32.const 9
	code = append(code, 0x0C, 0x00) // br 0
	code = append(code, 0x0B)       // end block
	code = append(code, 0x6A)       // i32.add
	code = append(code, 0x0B)       // end function
	data := buildModule(sig, [][]byte{codeEntry(code)}, map[string]int{"f": 0})
	mod, err := Instantiate(data, noHostImports)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	fn, _ := mod.Func("f")
	result, err := fn.Invoke()
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.I32() != 109 {
		t.Errorf("got %d, want 109 (100 + 9, discarding the un-carried 7)", result.I32())
	}
}
