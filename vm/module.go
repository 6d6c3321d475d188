package vm

import (
	"github.com/neri/maystorm-wasm/ir"
	"github.com/neri/maystorm-wasm/value"
	"github.com/neri/maystorm-wasm/wasm"
)

// Module is the instantiated, runnable aggregate: a decoded wasm.Module
// combined with resolved imports, validated code blocks and live
// memory/table/global state (spec §3 "Module"). It is built once by
// Instantiate and mutated only through the interpreter thereafter
// (memory contents, global cells, table entries).
type Module struct {
	types   []wasm.FuncType
	Funcs   []*Function
	Mems    []*Memory
	Tables  []*Table
	Globals []*Global
	exports map[string]wasm.Export
	start   *uint32

	arena *arena
}

// Identify probes a byte slice for the Wasm magic and version without
// decoding the rest of the module (spec §6 "identify").
func Identify(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	magic := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	version := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
	return magic == wasm.Magic && version == wasm.Version
}

// Instantiate is the loader orchestrator (spec §4.2 entry point): decode
// the binary into descriptors, resolve every import through resolver,
// validate and IR-generate every function body, then populate linear
// memory/table/global state from the element/data segments.
func Instantiate(data []byte, resolver Resolver) (*Module, error) {
	raw, err := wasm.Decode(data)
	if err != nil {
		return nil, err
	}

	m := &Module{
		types:   raw.Types,
		exports: make(map[string]wasm.Export, len(raw.Exports)),
		arena:   newArena(defaultArenaCapacity),
	}

	for _, imp := range raw.Imports {
		switch imp.Kind {
		case wasm.ImportFunc:
			sig := wasm.FuncType{}
			if int(imp.TypeIdx) < len(raw.Types) {
				sig = raw.Types[imp.TypeIdx]
			}
			host, err := resolver(imp.Module, imp.Name, sig)
			if err != nil {
				return nil, err
			}
			if host == nil {
				return nil, &wasm.DecodeError{Kind: wasm.DynamicLinkError}
			}
			m.Funcs = append(m.Funcs, &Function{
				Index:     len(m.Funcs),
				TypeIndex: imp.TypeIdx,
				Sig:       sig,
				Kind:      FuncImported,
				Host:      host,
			})
		case wasm.ImportMemory:
			m.Mems = append(m.Mems, newMemory(imp.Mem))
		default:
			// Table and global imports are decoded but not resolved by
			// this runtime (spec §4.2's table covers Function/Memory
			// imports; everything else is out of scope).
			return nil, &wasm.DecodeError{Kind: wasm.DynamicLinkError}
		}
	}

	for _, typeIdx := range raw.FuncTypeIdxs {
		sig := wasm.FuncType{}
		if int(typeIdx) < len(raw.Types) {
			sig = raw.Types[typeIdx]
		}
		m.Funcs = append(m.Funcs, &Function{
			Index:     len(m.Funcs),
			TypeIndex: typeIdx,
			Sig:       sig,
			Kind:      FuncInternal,
		})
	}

	for _, t := range raw.Tables {
		m.Tables = append(m.Tables, newTable(t))
	}
	for _, mt := range raw.Mems {
		m.Mems = append(m.Mems, newMemory(mt))
	}

	for _, g := range raw.Globals {
		v, err := evalConstExpr(g.Init)
		if err != nil {
			return nil, err
		}
		if v.Type != g.Type.Type {
			return nil, &wasm.DecodeError{Kind: wasm.InvalidGlobal}
		}
		m.Globals = append(m.Globals, &Global{Type: g.Type.Type, Mutable: g.Type.Mutable, Val: v})
	}

	for _, e := range raw.Exports {
		m.exports[e.Name] = e
		if e.Kind == wasm.ExportFunc && int(e.Index) < len(m.Funcs) {
			m.Funcs[e.Index].ExportName = e.Name
		}
	}
	m.start = raw.Start

	firstInternal := raw.NumImportedFuncs
	for i, body := range raw.Bodies {
		fidx := firstInternal + i
		if fidx >= len(m.Funcs) {
			return nil, &wasm.DecodeError{Kind: wasm.InvalidBytecode}
		}
		fn := m.Funcs[fidx]
		cb, err := ir.Generate(m, fn.Sig, body, fidx)
		if err != nil {
			return nil, err
		}
		fn.Code = cb
	}

	for _, el := range raw.Elements {
		off, err := evalOffset(el.Offset)
		if err != nil {
			return nil, err
		}
		if int(el.TableIdx) >= len(m.Tables) {
			return nil, &wasm.DecodeError{Kind: wasm.InvalidParameter}
		}
		tbl := m.Tables[el.TableIdx]
		for i, fidx := range el.FuncIdxs {
			idx := off + uint32(i)
			if int(idx) >= tbl.Len() {
				return nil, &wasm.DecodeError{Kind: wasm.InvalidParameter}
			}
			if err := tbl.set(idx, int32(fidx)); err != nil {
				return nil, &wasm.DecodeError{Kind: wasm.InvalidParameter}
			}
		}
	}

	for _, d := range raw.Datas {
		off, err := evalOffset(d.Offset)
		if err != nil {
			return nil, err
		}
		if int(d.MemIdx) >= len(m.Mems) {
			return nil, &wasm.DecodeError{Kind: wasm.InvalidParameter}
		}
		mem := m.Mems[d.MemIdx]
		if err := mem.WriteBytes(off, d.Init); err != nil {
			return nil, &wasm.DecodeError{Kind: wasm.InvalidParameter}
		}
	}

	return m, nil
}

// ModuleView implementation, consumed by package ir during Generate.

func (m *Module) TypeAt(idx uint32) (wasm.FuncType, bool) {
	if int(idx) >= len(m.types) {
		return wasm.FuncType{}, false
	}
	return m.types[idx], true
}

func (m *Module) FuncSignature(fidx int) (wasm.FuncType, bool) {
	if fidx < 0 || fidx >= len(m.Funcs) {
		return wasm.FuncType{}, false
	}
	return m.Funcs[fidx].Sig, true
}

func (m *Module) NumFuncs() int { return len(m.Funcs) }

func (m *Module) GlobalType(idx uint32) (value.ValueType, bool, bool) {
	if int(idx) >= len(m.Globals) {
		return 0, false, false
	}
	g := m.Globals[idx]
	return g.Type, g.Mutable, true
}

func (m *Module) HasMemory() bool { return len(m.Mems) > 0 }
func (m *Module) HasTable() bool  { return len(m.Tables) > 0 }

// FuncByIndex returns a callable handle to the function at fidx in the
// combined index space.
func (m *Module) FuncByIndex(fidx int) (*Runnable, bool) {
	if fidx < 0 || fidx >= len(m.Funcs) {
		return nil, false
	}
	return &Runnable{mod: m, fn: m.Funcs[fidx]}, true
}

// Func resolves an exported function by name.
func (m *Module) Func(name string) (*Runnable, bool) {
	e, ok := m.exports[name]
	if !ok || e.Kind != wasm.ExportFunc {
		return nil, false
	}
	return m.FuncByIndex(int(e.Index))
}

// EntryPoint returns the module's declared start function, if any.
func (m *Module) EntryPoint() (*Runnable, bool) {
	if m.start == nil {
		return nil, false
	}
	return m.FuncByIndex(int(*m.start))
}

// Memory0 returns the module's first memory, or nil if it declares none;
// a convenience for host functions that assume a single linear memory,
// the only shape this MVP runtime supports.
func (m *Module) Memory0() *Memory {
	if len(m.Mems) == 0 {
		return nil
	}
	return m.Mems[0]
}

// Runnable is a bound (module, function) pair ready to Invoke.
type Runnable struct {
	mod *Module
	fn  *Function
}

// Invoke calls the function with args, type-checking them against its
// declared parameter signature before entering the interpreter.
func (r *Runnable) Invoke(args ...value.Value) (value.Value, error) {
	fn := r.fn
	if len(args) != len(fn.Sig.Params) {
		return value.Value{}, trapf(InvalidParameter, "expected %d argument(s), got %d", len(fn.Sig.Params), len(args))
	}
	for i, a := range args {
		if a.Type != fn.Sig.Params[i] {
			return value.Value{}, trapf(TypeMismatch, "argument %d: expected %s, got %s", i, fn.Sig.Params[i], a.Type)
		}
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		raw[i] = a.Bits()
	}
	result, hasResult, err := r.mod.invokeRaw(fn, raw)
	if err != nil {
		return value.Value{}, err
	}
	if !hasResult {
		return value.Value{}, nil
	}
	return value.FromBits(fn.Sig.Results[0], result), nil
}
