package wasm

// DecodeErrorKind enumerates the disjoint ways loading and validating a
// module can fail. A DecodeError never leaves a partially usable module:
// the caller gets either a complete Module or one of these.
//
// Grounded on the teacher's vm/error.go sentinel-error convention (named
// vars, typed error), generalized to a single enum so the IR validator
// and the section loader can share one taxonomy as the spec requires.
type DecodeErrorKind int

const (
	UnexpectedEOF DecodeErrorKind = iota
	UnexpectedToken
	InvalidParameter
	InvalidBytecode
	InvalidStackLevel
	InvalidType
	InvalidGlobal
	InvalidLocal
	OutOfStack
	OutOfBranch
	OutOfMemory
	TypeMismatch
	BlockMismatch
	ElseWithoutIf
	UnreachableTrap
	DynamicLinkError
	NotSupported
	BadExecutable
	ExceededBytecode
)

var decodeErrorNames = [...]string{
	UnexpectedEOF:     "unexpected end of input",
	UnexpectedToken:   "unexpected token",
	InvalidParameter:  "invalid parameter",
	InvalidBytecode:   "invalid bytecode",
	InvalidStackLevel: "invalid stack level",
	InvalidType:       "invalid type",
	InvalidGlobal:     "invalid global index",
	InvalidLocal:      "invalid local index",
	OutOfStack:        "operand stack underflow",
	OutOfBranch:       "branch target out of range",
	OutOfMemory:       "instruction requires a memory but module declares none",
	TypeMismatch:      "type mismatch",
	BlockMismatch:     "mismatched block nesting",
	ElseWithoutIf:     "else without matching if",
	UnreachableTrap:   "unreachable instruction encountered during validation",
	DynamicLinkError:  "import could not be resolved",
	NotSupported:      "construct not supported by this implementation",
	BadExecutable:     "malformed module header",
	ExceededBytecode:  "bytecode size limit exceeded",
}

func (k DecodeErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(decodeErrorNames) {
		return decodeErrorNames[k]
	}
	return "unknown decode error"
}

// DecodeError is the error type returned by the loader and the
// validator. Pos carries the byte offset of the section (or, once inside
// a function body, of the failing instruction) for host-side diagnostics.
type DecodeError struct {
	Kind DecodeErrorKind
	Pos  int
}

func (e *DecodeError) Error() string {
	return e.Kind.String()
}

func errAt(kind DecodeErrorKind, pos int) *DecodeError {
	return &DecodeError{Kind: kind, Pos: pos}
}
