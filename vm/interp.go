package vm

import (
	"github.com/neri/maystorm-wasm/ir"
	"github.com/neri/maystorm-wasm/value"
)

// invokeRaw is the common call path for the public Runnable.Invoke entry
// point, the `call` IR instruction and `call_indirect`: every call into
// a module function — imported or internal — funnels through here so
// imported calls and recursive internal calls are indistinguishable to
// the caller (spec §4.4 "Calls reenter the interpreter ... using a
// shared stack arena").
func (m *Module) invokeRaw(fn *Function, args []uint64) (result uint64, hasResult bool, err error) {
	if fn.Kind == FuncImported {
		typed := make([]value.Value, len(args))
		for i, b := range args {
			typed[i] = value.FromBits(fn.Sig.Params[i], b)
		}
		res, err := fn.Host(m, typed)
		if err != nil {
			return 0, false, err
		}
		if len(fn.Sig.Results) == 0 {
			return 0, false, nil
		}
		return res.Bits(), true, nil
	}

	cb := fn.Code
	mark := m.arena.mark()
	defer m.arena.restore(mark)

	locals, err := m.arena.reserve(cb.NumLocals)
	if err != nil {
		return 0, false, err
	}
	copy(locals, args)

	stack, err := m.arena.reserve(cb.MaxStack)
	if err != nil {
		return 0, false, err
	}

	return m.run(fn, locals, stack)
}

// run executes one internal function's IR to completion: either the
// outermost `end` (compiled to a trailing Return, spec §4.3) or a trap.
func (m *Module) run(fn *Function, locals, stack []uint64) (uint64, bool, error) {
	cb := fn.Code
	code := cb.Code
	sp := 0
	pc := 0

	for {
		instr := code[pc]
		switch instr.Op {
		case ir.Return:
			if len(fn.Sig.Results) == 0 {
				return 0, false, nil
			}
			return stack[sp-1], true, nil

		case ir.Br:
			sp, pc = branchTo(stack, sp, int(instr.Param1), instr.Arity, code)
			continue
		case ir.BrIf:
			sp--
			if stack[sp] != 0 {
				sp, pc = branchTo(stack, sp, int(instr.Param1), instr.Arity, code)
				continue
			}
			pc++
			continue
		case ir.FusedI32BrZ:
			sp--
			if int32(uint32(stack[sp])) == 0 {
				sp, pc = branchTo(stack, sp, int(instr.Param1), instr.Arity, code)
				continue
			}
			pc++
			continue
		case ir.FusedI64BrZ:
			sp--
			if int64(stack[sp]) == 0 {
				sp, pc = branchTo(stack, sp, int(instr.Param1), instr.Arity, code)
				continue
			}
			pc++
			continue
		case ir.IfFalse:
			sp--
			if stack[sp] == 0 {
				pc = int(instr.Param1)
				continue
			}
			pc++
			continue
		case ir.Jmp:
			pc = int(instr.Param1)
			continue
		case ir.BrTable:
			idx := uint32(stack[sp-1])
			sp--
			targets := cb.ExtParams[instr.Param1]
			target := targets.Default
			arity := targets.DefaultArity
			if int(idx) < len(targets.Targets) {
				target = targets.Targets[idx]
				arity = targets.Arities[idx]
			}
			sp, pc = branchTo(stack, sp, target, arity, code)
			continue

		case ir.Call:
			callee := m.Funcs[instr.Param1]
			nargs := len(callee.Sig.Params)
			sp -= nargs
			res, hasRes, err := m.invokeRaw(callee, stack[sp:sp+nargs])
			if err != nil {
				return 0, false, err
			}
			if hasRes {
				stack[sp] = res
				sp++
			}
			pc++
			continue

		case ir.CallIndirect:
			if len(m.Tables) == 0 {
				return 0, false, trap(NoMethod)
			}
			sp--
			idx := uint32(stack[sp])
			raw, err := m.Tables[0].Get(idx)
			if err != nil {
				return 0, false, err
			}
			if raw < 0 || int(raw) >= len(m.Funcs) {
				return 0, false, trap(NoMethod)
			}
			callee := m.Funcs[raw]
			if uint32(callee.TypeIndex) != uint32(instr.Param1) {
				return 0, false, trap(TypeMismatch)
			}
			nargs := len(callee.Sig.Params)
			sp -= nargs
			res, hasRes, err := m.invokeRaw(callee, stack[sp:sp+nargs])
			if err != nil {
				return 0, false, err
			}
			if hasRes {
				stack[sp] = res
				sp++
			}
			pc++
			continue

		case ir.Drop:
			sp--
			pc++
			continue
		case ir.Select:
			cond := stack[sp-1]
			if cond == 0 {
				stack[sp-3] = stack[sp-2]
			}
			sp -= 2
			pc++
			continue

		case ir.LocalGet:
			stack[sp] = locals[instr.Param1]
			sp++
			pc++
			continue
		case ir.LocalSet:
			sp--
			locals[instr.Param1] = stack[sp]
			pc++
			continue
		case ir.LocalTee:
			locals[instr.Param1] = stack[sp-1]
			pc++
			continue
		case ir.GlobalGet:
			stack[sp] = m.Globals[instr.Param1].Val.Bits()
			sp++
			pc++
			continue
		case ir.GlobalSet:
			sp--
			g := m.Globals[instr.Param1]
			g.Val = value.FromBits(g.Type, stack[sp])
			pc++
			continue

		case ir.FusedI32AddImm:
			stack[sp-1] = uint64(uint32(int32(uint32(stack[sp-1])) + int32(instr.Param1)))
			pc++
			continue
		case ir.FusedI32SubImm:
			stack[sp-1] = uint64(uint32(int32(uint32(stack[sp-1])) - int32(instr.Param1)))
			pc++
			continue
		case ir.FusedI32AndImm:
			stack[sp-1] = uint64(uint32(stack[sp-1]) & uint32(instr.Param1))
			pc++
			continue
		case ir.FusedI32OrImm:
			stack[sp-1] = uint64(uint32(stack[sp-1]) | uint32(instr.Param1))
			pc++
			continue
		case ir.FusedI32XorImm:
			stack[sp-1] = uint64(uint32(stack[sp-1]) ^ uint32(instr.Param1))
			pc++
			continue
		case ir.FusedI32ShlImm:
			stack[sp-1] = uint64(uint32(stack[sp-1]) << (uint32(instr.Param1) & 31))
			pc++
			continue
		case ir.FusedI32ShrSImm:
			stack[sp-1] = uint64(uint32(int32(uint32(stack[sp-1])) >> (uint32(instr.Param1) & 31)))
			pc++
			continue
		case ir.FusedI32ShrUImm:
			stack[sp-1] = uint64(uint32(stack[sp-1]) >> (uint32(instr.Param1) & 31))
			pc++
			continue
		case ir.FusedI64AddImm:
			stack[sp-1] = uint64(int64(stack[sp-1]) + instr.Param1)
			pc++
			continue
		case ir.FusedI64SubImm:
			stack[sp-1] = uint64(int64(stack[sp-1]) - instr.Param1)
			pc++
			continue

		default:
			op, ok := instr.Op.AsOpcode()
			if !ok {
				return 0, false, trap(NotSupported)
			}
			var err error
			sp, err = m.execOpcode(op, instr, stack, sp)
			if err != nil {
				return 0, false, err
			}
			pc++
			continue
		}
	}
}

// branchTo resolves a branch: target is the post-fusion IR index stored
// in the instruction's operand, already absolute. code[target].Level is
// the runtime operand-stack height the validator computed for whatever
// instruction finally landed there — the post-branch stack height,
// already counting any carried result. arity (0 or 1) is the branch
// label's own result arity, computed at validation time — NOT derived
// from how deep the live stack happens to be, since Wasm allows extra
// values to sit above a label that the branch must discard rather than
// carry. The carried value (if any) moves from the top of the live
// stack down to the bottom of its final slot, targetLevel-arity, and sp
// becomes targetLevel exactly: anything between the two heights,
// discarded values included, is dropped.
func branchTo(stack []uint64, sp int, target int, arity int, code []ir.Imc) (int, int) {
	targetLevel := code[target].Level
	if arity > 0 {
		stack[targetLevel-arity] = stack[sp-1]
	}
	return targetLevel, target
}
