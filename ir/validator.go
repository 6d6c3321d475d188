package ir

import (
	"github.com/neri/maystorm-wasm/bytestream"
	"github.com/neri/maystorm-wasm/opcode"
	"github.com/neri/maystorm-wasm/value"
	"github.com/neri/maystorm-wasm/wasm"
)

// ModuleView is the read-only slice of module state the validator needs
// in order to type-check one function body. It exists so this package
// never has to import the vm package that owns instantiation: vm.Module
// implements ModuleView and hands itself to Generate, avoiding the import
// cycle a concrete dependency would create.
type ModuleView interface {
	TypeAt(idx uint32) (wasm.FuncType, bool)
	FuncSignature(fidx int) (wasm.FuncType, bool)
	NumFuncs() int
	GlobalType(idx uint32) (typ value.ValueType, mutable bool, ok bool)
	HasMemory() bool
	HasTable() bool
}

// anyType is the wildcard pushed/popped while a block is in the
// unreachable (polymorphic) state, per the standard Wasm validation
// algorithm: once `unreachable` executes, remaining operand-stack checks
// in that block are skipped until the block closes.
const anyType value.ValueType = -1

type blockKind int

const (
	bkBlock blockKind = iota
	bkLoop
	bkIf
)

type ctrlFrame struct {
	kind        blockKind
	blockType   value.BlockType
	height      int
	unreachable bool
	startRaw    int
	endRaw      int
	ifOrdinal   int
	elseOrdinal int // -1 until an else is seen
}

func (f *ctrlFrame) target() int {
	if f.kind == bkLoop {
		return f.startRaw
	}
	return f.endRaw
}

// branchArity is the number of values a branch to f carries across the
// stack truncation at its label. For a block/if this is the label's
// declared result arity. For a loop, a branch re-enters at the loop's
// start rather than falling through its end, so the label's type is
// properly the loop's *parameter* arity, not its result arity; this
// implementation's value.BlockType never carries parameters, so that
// arity is always 0 here, but it's computed via this guard rather than
// blockType.HasResult so it stays correct if block params are ever added.
func branchArity(f *ctrlFrame) int {
	if f.kind == bkLoop {
		return 0
	}
	if f.blockType.HasResult {
		return 1
	}
	return 0
}

type branchPatch struct {
	ordinal int
	frame   *ctrlFrame
	arity   int
}

type brTablePatch struct {
	slot    int
	frames  []*ctrlFrame
	deflt   *ctrlFrame
}

// generator holds all the mutable state threaded through validation of a
// single function body.
type generator struct {
	view    ModuleView
	locals  []value.ValueType
	stack   []value.ValueType
	frames  []*ctrlFrame
	out     []Imc
	ext     []BrTableTargets
	patches []branchPatch
	tpatch  []brTablePatch
	maxStack int
	leaf    bool
}

func (g *generator) push(t value.ValueType) {
	g.stack = append(g.stack, t)
	if len(g.stack) > g.maxStack {
		g.maxStack = len(g.stack)
	}
}

func (g *generator) pop(pos int) (value.ValueType, error) {
	cur := g.frames[len(g.frames)-1]
	if len(g.stack) == cur.height {
		if cur.unreachable {
			return anyType, nil
		}
		return 0, errAt(wasm.OutOfStack, pos)
	}
	t := g.stack[len(g.stack)-1]
	g.stack = g.stack[:len(g.stack)-1]
	return t, nil
}

func (g *generator) popExpect(t value.ValueType, pos int) error {
	got, err := g.pop(pos)
	if err != nil {
		return err
	}
	if got != anyType && got != t {
		return errAt(wasm.TypeMismatch, pos)
	}
	return nil
}

func (g *generator) setUnreachable() {
	cur := g.frames[len(g.frames)-1]
	cur.unreachable = true
	g.stack = g.stack[:cur.height]
}

func errAt(kind wasm.DecodeErrorKind, pos int) error {
	return &wasm.DecodeError{Kind: kind, Pos: pos}
}

func (g *generator) emit(pos int, op Mnemonic, param int64) int {
	idx := len(g.out)
	g.out = append(g.out, Imc{Pos: pos, Op: op, Level: len(g.stack), Param1: param})
	return idx
}

func readBlockType(r *bytestream.Reader) (value.BlockType, error) {
	b, err := r.PeekByte()
	if err != nil {
		return value.BlockType{}, errAt(wasm.UnexpectedEOF, r.Pos())
	}
	if b == 0x40 {
		r.ReadByte()
		return value.EmptyBlockType, nil
	}
	switch b {
	case 0x7F:
		r.ReadByte()
		return value.ResultBlockType(value.I32), nil
	case 0x7E:
		r.ReadByte()
		return value.ResultBlockType(value.I64), nil
	case 0x7D:
		r.ReadByte()
		return value.ResultBlockType(value.F32), nil
	case 0x7C:
		r.ReadByte()
		return value.ResultBlockType(value.F64), nil
	default:
		return value.BlockType{}, errAt(wasm.NotSupported, r.Pos())
	}
}

func readMemarg(r *bytestream.Reader) (offset uint32, err error) {
	if _, err = r.ReadUnsigned(); err != nil { // align, unused by this interpreter
		return 0, err
	}
	return r.ReadUnsigned32()
}

// Generate validates one function body against view and sig, producing
// its resolved CodeBlock. body.Code includes the function's outermost
// end byte. funcIndex is recorded on the result purely for diagnostics.
func Generate(view ModuleView, sig wasm.FuncType, body wasm.FuncBody, funcIndex int) (*CodeBlock, error) {
	if len(sig.Results) > 1 {
		return nil, errAt(wasm.NotSupported, 0)
	}
	locals := append([]value.ValueType{}, sig.Params...)
	for _, le := range body.Locals {
		for i := uint32(0); i < le.Count; i++ {
			locals = append(locals, le.Type)
		}
	}

	g := &generator{view: view, locals: locals, leaf: true}

	outerType := value.EmptyBlockType
	if len(sig.Results) == 1 {
		outerType = value.ResultBlockType(sig.Results[0])
	}
	outer := &ctrlFrame{kind: bkBlock, blockType: outerType, height: 0, elseOrdinal: -1}
	g.frames = append(g.frames, outer)

	r := bytestream.NewReader(body.Code)
	if err := g.walk(r); err != nil {
		return nil, err
	}
	if len(g.frames) != 0 {
		return nil, errAt(wasm.BlockMismatch, r.Pos())
	}

	for _, p := range g.patches {
		g.out[p.ordinal].Param1 = int64(p.frame.target())
		g.out[p.ordinal].Arity = p.arity
	}
	for _, tp := range g.tpatch {
		targets := make([]int, len(tp.frames))
		arities := make([]int, len(tp.frames))
		for i, f := range tp.frames {
			targets[i] = f.target()
			arities[i] = branchArity(f)
		}
		g.ext[tp.slot] = BrTableTargets{
			Targets:      targets,
			Default:      tp.deflt.target(),
			Arities:      arities,
			DefaultArity: branchArity(tp.deflt),
		}
	}

	code, ext := fuse(g.out, g.ext)
	return &CodeBlock{
		Code:      code,
		ExtParams: ext,
		NumLocals: len(locals),
		MaxStack:  g.maxStack,
		FuncIndex: funcIndex,
		Leaf:      g.leaf,
	}, nil
}

func (g *generator) walk(r *bytestream.Reader) error {
	for {
		if len(g.frames) == 0 {
			return nil
		}
		pos := r.Pos()
		b, err := r.ReadByte()
		if err != nil {
			return errAt(wasm.UnexpectedEOF, pos)
		}
		op := opcode.Opcode(b)

		if op == opcode.End {
			if err := g.onEnd(pos); err != nil {
				return err
			}
			continue
		}
		if op == opcode.Else {
			if err := g.onElse(pos); err != nil {
				return err
			}
			continue
		}
		// Level is the operand-stack height before the instruction's own
		// pops; step emits at most one instruction, after popping.
		level, n := len(g.stack), len(g.out)
		if err := g.step(r, pos, op); err != nil {
			return err
		}
		if len(g.out) > n {
			g.out[n].Level = level
		}
	}
}

func (g *generator) onEnd(pos int) error {
	cur := g.frames[len(g.frames)-1]
	if cur.blockType.HasResult {
		if err := g.popExpect(cur.blockType.Result, pos); err != nil {
			return err
		}
	}
	if !cur.unreachable && len(g.stack) != cur.height {
		return errAt(wasm.TypeMismatch, pos)
	}
	if cur.kind == bkIf && cur.blockType.HasResult && cur.elseOrdinal < 0 {
		// then-branch alone cannot produce the declared result.
		return errAt(wasm.BlockMismatch, pos)
	}
	g.stack = g.stack[:cur.height]
	cur.endRaw = len(g.out)
	if cur.kind == bkIf {
		falseTarget := cur.endRaw
		if cur.elseOrdinal >= 0 {
			falseTarget = cur.elseOrdinal + 1
		}
		g.out[cur.ifOrdinal].Param1 = int64(falseTarget)
	}
	if cur.elseOrdinal >= 0 {
		g.out[cur.elseOrdinal].Param1 = int64(cur.endRaw)
	}
	g.frames = g.frames[:len(g.frames)-1]
	if cur.blockType.HasResult {
		g.push(cur.blockType.Result)
	}
	if len(g.frames) == 0 {
		g.emit(pos, Return, 0)
	}
	return nil
}

func (g *generator) onElse(pos int) error {
	cur := g.frames[len(g.frames)-1]
	if cur.kind != bkIf || cur.elseOrdinal >= 0 {
		return errAt(wasm.ElseWithoutIf, pos)
	}
	level := len(g.stack)
	if cur.blockType.HasResult {
		if err := g.popExpect(cur.blockType.Result, pos); err != nil {
			return err
		}
	}
	if !cur.unreachable && len(g.stack) != cur.height {
		return errAt(wasm.TypeMismatch, pos)
	}
	g.stack = g.stack[:cur.height]
	cur.unreachable = false
	cur.elseOrdinal = g.emit(pos, Jmp, 0) // target patched when End is reached
	g.out[cur.elseOrdinal].Level = level
	return nil
}

func (g *generator) step(r *bytestream.Reader, pos int, op opcode.Opcode) error {
	switch op {
	case opcode.Unreachable:
		g.emit(pos, fromOpcode(op), 0)
		g.setUnreachable()
		return nil
	case opcode.Nop:
		g.emit(pos, Nop, 0)
		return nil

	case opcode.Block, opcode.Loop, opcode.If:
		bt, err := readBlockType(r)
		if err != nil {
			return err
		}
		kind := bkBlock
		if op == opcode.Loop {
			kind = bkLoop
		}
		if op == opcode.If {
			kind = bkIf
			if err := g.popExpect(value.I32, pos); err != nil {
				return err
			}
		}
		f := &ctrlFrame{kind: kind, blockType: bt, height: len(g.stack), startRaw: len(g.out), elseOrdinal: -1}
		if kind == bkIf {
			f.ifOrdinal = g.emit(pos, IfFalse, 0) // target patched at else/end
		}
		g.frames = append(g.frames, f)
		return nil

	case opcode.Br, opcode.BrIf:
		depth, err := r.ReadUnsigned32()
		if err != nil {
			return err
		}
		if op == opcode.BrIf {
			if err := g.popExpect(value.I32, pos); err != nil {
				return err
			}
		}
		f, err := g.frameAt(depth, pos)
		if err != nil {
			return err
		}
		if f.blockType.HasResult {
			if err := g.peekExpect(f.blockType.Result, pos); err != nil {
				return err
			}
		}
		mnemonic := Br
		if op == opcode.BrIf {
			mnemonic = BrIf
		}
		ordinal := g.emit(pos, mnemonic, 0)
		g.patches = append(g.patches, branchPatch{ordinal: ordinal, frame: f, arity: branchArity(f)})
		if op == opcode.Br {
			g.setUnreachable()
		}
		return nil

	case opcode.BrTable:
		count, err := r.ReadUnsigned32()
		if err != nil {
			return err
		}
		frames := make([]*ctrlFrame, count)
		for i := range frames {
			d, err := r.ReadUnsigned32()
			if err != nil {
				return err
			}
			f, err := g.frameAt(d, pos)
			if err != nil {
				return err
			}
			frames[i] = f
		}
		d, err := r.ReadUnsigned32()
		if err != nil {
			return err
		}
		deflt, err := g.frameAt(d, pos)
		if err != nil {
			return err
		}
		if err := g.popExpect(value.I32, pos); err != nil {
			return err
		}
		if deflt.blockType.HasResult {
			if err := g.peekExpect(deflt.blockType.Result, pos); err != nil {
				return err
			}
		}
		slot := len(g.ext)
		g.ext = append(g.ext, BrTableTargets{})
		g.emit(pos, BrTable, int64(slot))
		g.tpatch = append(g.tpatch, brTablePatch{slot: slot, frames: frames, deflt: deflt})
		g.setUnreachable()
		return nil

	case opcode.Return:
		outer := g.frames[0]
		if outer.blockType.HasResult {
			if err := g.peekExpect(outer.blockType.Result, pos); err != nil {
				return err
			}
		}
		g.emit(pos, Return, 0)
		g.setUnreachable()
		return nil

	case opcode.Call:
		idx, err := r.ReadUnsigned32()
		if err != nil {
			return err
		}
		sig, ok := g.view.FuncSignature(int(idx))
		if !ok {
			return errAt(wasm.InvalidParameter, pos)
		}
		g.leaf = false
		for i := len(sig.Params) - 1; i >= 0; i-- {
			if err := g.popExpect(sig.Params[i], pos); err != nil {
				return err
			}
		}
		g.emit(pos, Call, int64(idx))
		for _, rt := range sig.Results {
			g.push(rt)
		}
		return nil

	case opcode.CallIndirect:
		typeIdx, err := r.ReadUnsigned32()
		if err != nil {
			return err
		}
		if _, err := r.ReadByte(); err != nil { // reserved table index, must be 0
			return err
		}
		if !g.view.HasTable() {
			return errAt(wasm.InvalidParameter, pos)
		}
		sig, ok := g.view.TypeAt(typeIdx)
		if !ok {
			return errAt(wasm.InvalidType, pos)
		}
		g.leaf = false
		if err := g.popExpect(value.I32, pos); err != nil {
			return err
		}
		for i := len(sig.Params) - 1; i >= 0; i-- {
			if err := g.popExpect(sig.Params[i], pos); err != nil {
				return err
			}
		}
		g.emit(pos, CallIndirect, int64(typeIdx))
		for _, rt := range sig.Results {
			g.push(rt)
		}
		return nil

	case opcode.Drop:
		if _, err := g.pop(pos); err != nil {
			return err
		}
		g.emit(pos, Drop, 0)
		return nil

	case opcode.Select:
		if err := g.popExpect(value.I32, pos); err != nil {
			return err
		}
		b, err := g.pop(pos)
		if err != nil {
			return err
		}
		a, err := g.pop(pos)
		if err != nil {
			return err
		}
		if a != anyType && b != anyType && a != b {
			return errAt(wasm.TypeMismatch, pos)
		}
		result := a
		if result == anyType {
			result = b
		}
		g.emit(pos, Select, 0)
		g.push(result)
		return nil

	case opcode.LocalGet, opcode.LocalSet, opcode.LocalTee:
		idx, err := r.ReadUnsigned32()
		if err != nil {
			return err
		}
		if int(idx) >= len(g.locals) {
			return errAt(wasm.InvalidLocal, pos)
		}
		t := g.locals[idx]
		switch op {
		case opcode.LocalGet:
			g.emit(pos, LocalGet, int64(idx))
			g.push(t)
		case opcode.LocalSet:
			if err := g.popExpect(t, pos); err != nil {
				return err
			}
			g.emit(pos, LocalSet, int64(idx))
		case opcode.LocalTee:
			if err := g.popExpect(t, pos); err != nil {
				return err
			}
			g.emit(pos, LocalTee, int64(idx))
			g.push(t)
		}
		return nil

	case opcode.GlobalGet, opcode.GlobalSet:
		idx, err := r.ReadUnsigned32()
		if err != nil {
			return err
		}
		t, mutable, ok := g.view.GlobalType(idx)
		if !ok {
			return errAt(wasm.InvalidGlobal, pos)
		}
		if op == opcode.GlobalGet {
			g.emit(pos, GlobalGet, int64(idx))
			g.push(t)
		} else {
			if !mutable {
				return errAt(wasm.InvalidGlobal, pos)
			}
			if err := g.popExpect(t, pos); err != nil {
				return err
			}
			g.emit(pos, GlobalSet, int64(idx))
		}
		return nil

	case opcode.MemorySize, opcode.MemoryGrow:
		if _, err := r.ReadByte(); err != nil { // reserved memory index, must be 0
			return err
		}
		if !g.view.HasMemory() {
			return errAt(wasm.OutOfMemory, pos)
		}
		if op == opcode.MemoryGrow {
			if err := g.popExpect(value.I32, pos); err != nil {
				return err
			}
		}
		g.emit(pos, fromOpcode(op), 0)
		g.push(value.I32)
		return nil

	case opcode.I32Const:
		v, err := r.ReadSigned()
		if err != nil {
			return err
		}
		g.emit(pos, fromOpcode(op), int64(int32(v)))
		g.push(value.I32)
		return nil
	case opcode.I64Const:
		v, err := r.ReadSigned()
		if err != nil {
			return err
		}
		g.emit(pos, fromOpcode(op), v)
		g.push(value.I64)
		return nil
	case opcode.F32Const:
		raw, err := r.GetBytes(4)
		if err != nil {
			return err
		}
		g.emit(pos, fromOpcode(op), int64(le32(raw)))
		g.push(value.F32)
		return nil
	case opcode.F64Const:
		raw, err := r.GetBytes(8)
		if err != nil {
			return err
		}
		g.emit(pos, fromOpcode(op), int64(le64(raw)))
		g.push(value.F64)
		return nil
	}

	if opcode.IsMemoryOp(op) {
		offset, err := readMemarg(r)
		if err != nil {
			return err
		}
		if !g.view.HasMemory() {
			return errAt(wasm.OutOfMemory, pos)
		}
		if opcode.IsLoad(op) {
			in := loadSrc(op)
			if err := g.popExpect(value.I32, pos); err != nil {
				return err
			}
			g.emit(pos, fromOpcode(op), int64(offset))
			g.push(in)
			return nil
		}
		if opcode.IsStore(op) {
			in := storeSrc(op)
			if err := g.popExpect(in, pos); err != nil {
				return err
			}
			if err := g.popExpect(value.I32, pos); err != nil {
				return err
			}
			g.emit(pos, fromOpcode(op), int64(offset))
			return nil
		}
	}

	if sig, ok := opSigs[op]; ok {
		if sig.hasIn2 {
			if err := g.popExpect(sig.in2, pos); err != nil {
				return err
			}
		}
		if err := g.popExpect(sig.in1, pos); err != nil {
			return err
		}
		g.emit(pos, fromOpcode(op), 0)
		if sig.hasOut {
			g.push(sig.out)
		}
		return nil
	}

	return errAt(wasm.UnexpectedToken, pos)
}

// peekExpect type-checks the value a branch or return would carry to its
// target without removing it: br_if and br_table may fall through to the
// next instruction, which still needs that value on the stack.
func (g *generator) peekExpect(t value.ValueType, pos int) error {
	cur := g.frames[len(g.frames)-1]
	if len(g.stack) == cur.height {
		if cur.unreachable {
			return nil
		}
		return errAt(wasm.OutOfStack, pos)
	}
	got := g.stack[len(g.stack)-1]
	if got != anyType && t != anyType && got != t {
		return errAt(wasm.TypeMismatch, pos)
	}
	return nil
}

func (g *generator) frameAt(depth uint32, pos int) (*ctrlFrame, error) {
	idx := len(g.frames) - 1 - int(depth)
	if idx < 0 {
		return nil, errAt(wasm.OutOfBranch, pos)
	}
	return g.frames[idx], nil
}

func loadSrc(op opcode.Opcode) value.ValueType {
	switch op {
	case opcode.I32Load, opcode.I32Load8S, opcode.I32Load8U, opcode.I32Load16S, opcode.I32Load16U:
		return value.I32
	case opcode.I64Load, opcode.I64Load8S, opcode.I64Load8U, opcode.I64Load16S, opcode.I64Load16U,
		opcode.I64Load32S, opcode.I64Load32U:
		return value.I64
	case opcode.F32Load:
		return value.F32
	case opcode.F64Load:
		return value.F64
	}
	return value.I32
}

func storeSrc(op opcode.Opcode) value.ValueType {
	switch op {
	case opcode.I32Store, opcode.I32Store8, opcode.I32Store16:
		return value.I32
	case opcode.I64Store, opcode.I64Store8, opcode.I64Store16, opcode.I64Store32:
		return value.I64
	case opcode.F32Store:
		return value.F32
	case opcode.F64Store:
		return value.F64
	}
	return value.I32
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
