package ir

// Imc ("intermediate machine code") is one instruction of the flat array
// the validator emits. Param1 carries whatever single 64-bit operand the
// mnemonic needs (a local/global/function index, a constant, a resolved
// branch target); BrTable additionally stores its full target list out of
// line in the owning CodeBlock's ExtParams, indexed by Param1.
type Imc struct {
	Pos    int
	Op     Mnemonic
	Level  int // operand-stack height immediately before this instruction
	Param1 int64
	// Arity is the result arity (0 or 1) of the control label a branch
	// instruction targets — how many values survive the branch's stack
	// truncation. Meaningful only on Br, BrIf, FusedI32BrZ and
	// FusedI64BrZ; zero and unused otherwise.
	Arity int
}

// BrTableTargets is one br_table's target list: Targets[i] for table
// index i, Default for every index out of range. Arities/DefaultArity
// mirror Targets/Default and carry each branch's result arity the same
// way Imc.Arity does for a plain Br.
type BrTableTargets struct {
	Targets      []int
	Default      int
	Arities      []int
	DefaultArity int
}

// CodeBlock is the compiled, branch-resolved form of one function body,
// ready for the interpreter in package vm.
type CodeBlock struct {
	Code      []Imc
	ExtParams []BrTableTargets
	// NumLocals is the total width of the locals frame: the function's
	// parameters followed by its declared locals, in that order, since
	// that is the one number the interpreter needs to size its per-call
	// locals slice (individual widths never exceed one 64-bit slot).
	NumLocals int
	MaxStack  int // high-water mark of the operand stack, for arena sizing
	FuncIndex int // owning function's index in the combined function space
	// Leaf is true when this function's body contains no call or
	// call_indirect; a hint the interpreter doesn't currently special
	// case but which a future fast path (spec §4.5) could use to skip
	// the shared arena's mark/restore bookkeeping for the common case.
	Leaf bool
}
