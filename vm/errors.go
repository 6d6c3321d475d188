// Package vm is the loader orchestrator and interpreter: it combines a
// decoded wasm.Module, a host import resolver and the ir validator to
// build a runnable instance, then walks the resulting flat IR with a
// tree-walking interpreter over a shared bump-allocated value-stack
// arena.
//
// Grounded on the teacher's main.go/vm.go public shape (NewVM, Invoke,
// HostFunction, MemRead/MemWrite) generalized to run against package ir's
// resolved CodeBlock instead of re-walking raw bytecode per call.
package vm

import "fmt"

// RuntimeErrorKind enumerates the disjoint ways a validated module can
// still fail at invoke time: every failure the interpreter can produce
// is one of these, never an ad hoc wrapped error.
type RuntimeErrorKind int

const (
	InvalidParameter RuntimeErrorKind = iota
	NotSupported
	Unreachable
	OutOfBounds
	OutOfMemory
	NoMethod
	DivideByZero
	TypeMismatch
)

var runtimeErrorNames = [...]string{
	InvalidParameter: "invalid parameter",
	NotSupported:     "construct not supported by this runtime",
	Unreachable:      "unreachable instruction trap",
	OutOfBounds:      "memory access out of bounds",
	OutOfMemory:      "memory growth would exceed its limit",
	NoMethod:         "no such exported function",
	DivideByZero:     "integer division by zero",
	TypeMismatch:     "type mismatch",
}

func (k RuntimeErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(runtimeErrorNames) {
		return runtimeErrorNames[k]
	}
	return "unknown runtime error"
}

// RuntimeError is returned by Invoke and by host functions that need to
// trap the call.
type RuntimeError struct {
	Kind RuntimeErrorKind
	Msg  string
}

func (e *RuntimeError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

func trap(kind RuntimeErrorKind) error { return &RuntimeError{Kind: kind} }

func trapf(kind RuntimeErrorKind, format string, args ...interface{}) error {
	return &RuntimeError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
