package ir

import "github.com/neri/maystorm-wasm/opcode"

// fuse runs the peephole pass over raw, drops bare nops, and resolves
// every branch target left as a raw (pre-fusion) IR index by Generate
// into its final position in the compacted array.
//
// landing collects every raw index some Br/BrIf/IfFalse/Jmp/BrTable
// targets. A pair is never fused when its second instruction is such a
// landing site, since a branch arriving there must not re-execute the
// first instruction of the pair.
func fuse(raw []Imc, rawExt []BrTableTargets) ([]Imc, []BrTableTargets) {
	remap := make([]int, len(raw)+1)
	out := make([]Imc, 0, len(raw))

	landing := make(map[int]bool)
	for _, c := range raw {
		switch c.Op {
		case Br, BrIf, IfFalse, Jmp:
			landing[int(c.Param1)] = true
		}
	}
	for _, row := range rawExt {
		for _, t := range row.Targets {
			landing[t] = true
		}
		landing[row.Default] = true
	}

	i := 0
	for i < len(raw) {
		cur := raw[i]

		if cur.Op == Nop {
			remap[i] = len(out)
			i++
			continue
		}

		if i+1 < len(raw) && !landing[i+1] {
			if fused, ok := tryFuseArith(cur, raw[i+1]); ok {
				remap[i] = len(out)
				remap[i+1] = len(out)
				out = append(out, fused)
				i += 2
				continue
			}
			if fused, ok := tryFuseBrZ(cur, raw[i+1]); ok {
				remap[i] = len(out)
				remap[i+1] = len(out)
				out = append(out, fused)
				i += 2
				continue
			}
		}

		remap[i] = len(out)
		out = append(out, cur)
		i++
	}
	remap[len(raw)] = len(out)

	for idx := range out {
		switch out[idx].Op {
		case Br, BrIf, IfFalse, Jmp, FusedI32BrZ, FusedI64BrZ:
			out[idx].Param1 = int64(remap[out[idx].Param1])
		case BrTable:
			// resolved via ExtParams below; Param1 is a stable slot index.
		}
	}
	ext := make([]BrTableTargets, len(rawExt))
	for i, row := range rawExt {
		targets := make([]int, len(row.Targets))
		for j, t := range row.Targets {
			targets[j] = remap[t]
		}
		ext[i] = BrTableTargets{
			Targets:      targets,
			Default:      remap[row.Default],
			Arities:      row.Arities,
			DefaultArity: row.DefaultArity,
		}
	}
	return out, ext
}

// tryFuseArith folds `const` followed by a commutative/shift arithmetic
// op into one fused instruction, per the spec's peephole pass.
func tryFuseArith(a, b Imc) (Imc, bool) {
	aOp, aOK := a.Op.AsOpcode()
	bOp, bOK := b.Op.AsOpcode()
	if !aOK || !bOK {
		return Imc{}, false
	}
	if aOp == opcode.I32Const {
		if m, ok := i32FusedOp(bOp); ok {
			return Imc{Pos: a.Pos, Op: m, Level: a.Level, Param1: a.Param1}, true
		}
	}
	if aOp == opcode.I64Const {
		if m, ok := i64FusedOp(bOp); ok {
			return Imc{Pos: a.Pos, Op: m, Level: a.Level, Param1: a.Param1}, true
		}
	}
	return Imc{}, false
}

func i32FusedOp(op opcode.Opcode) (Mnemonic, bool) {
	switch op {
	case opcode.I32Add:
		return FusedI32AddImm, true
	case opcode.I32Sub:
		return FusedI32SubImm, true
	case opcode.I32And:
		return FusedI32AndImm, true
	case opcode.I32Or:
		return FusedI32OrImm, true
	case opcode.I32Xor:
		return FusedI32XorImm, true
	case opcode.I32Shl:
		return FusedI32ShlImm, true
	case opcode.I32ShrS:
		return FusedI32ShrSImm, true
	case opcode.I32ShrU:
		return FusedI32ShrUImm, true
	}
	return 0, false
}

func i64FusedOp(op opcode.Opcode) (Mnemonic, bool) {
	switch op {
	case opcode.I64Add:
		return FusedI64AddImm, true
	case opcode.I64Sub:
		return FusedI64SubImm, true
	}
	return 0, false
}

// tryFuseBrZ folds `i32.eqz`/`i64.eqz` followed by `br_if` into a single
// "branch if zero" instruction, skipping the intermediate i32 condition
// value entirely.
func tryFuseBrZ(a, b Imc) (Imc, bool) {
	if b.Op != BrIf {
		return Imc{}, false
	}
	aOp, ok := a.Op.AsOpcode()
	if !ok {
		return Imc{}, false
	}
	switch aOp {
	case opcode.I32Eqz:
		return Imc{Pos: a.Pos, Op: FusedI32BrZ, Level: a.Level, Param1: b.Param1, Arity: b.Arity}, true
	case opcode.I64Eqz:
		return Imc{Pos: a.Pos, Op: FusedI64BrZ, Level: a.Level, Param1: b.Param1, Arity: b.Arity}, true
	}
	return Imc{}, false
}
