// Package wasm implements the descriptor parser (the loader orchestrator
// is vm.Instantiate): it decodes a Wasm 1.0 binary module into strongly-typed descriptors
// (function signatures, imports, exports, memory/table limits, globals,
// element/data segments) without interpreting function bodies. Function
// bodies are handed to package ir, which owns validation and IR
// generation, keeping this package free of any dependency on the
// validator or interpreter.
//
// Grounded on the teacher's wasm/module.go section-by-section reader,
// rewritten over bytestream.Reader instead of io.Reader and with the
// field names unified against the struct that actually declares Module.
package wasm

import "github.com/neri/maystorm-wasm/value"

// Section ids, in the order the Wasm binary format prescribes them.
const (
	SecCustom byte = iota
	SecType
	SecImport
	SecFunction
	SecTable
	SecMemory
	SecGlobal
	SecExport
	SecStart
	SecElement
	SecCode
	SecData
)

// FuncType is a function signature: an ordered list of parameter types
// and an ordered list of result types.
type FuncType struct {
	Params  []value.ValueType
	Results []value.ValueType
}

// Equal reports whether f and o describe the same signature.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i, t := range f.Params {
		if o.Params[i] != t {
			return false
		}
	}
	for i, t := range f.Results {
		if o.Results[i] != t {
			return false
		}
	}
	return true
}

// Limits is the (min, max) pair shared by memory and table descriptors;
// HasMax is false when the binary omitted the upper bound.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// MemType describes a memory import/definition: limits expressed in
// 64KiB pages.
type MemType struct {
	Limits Limits
}

// TableType describes a table import/definition. The MVP only allows the
// funcref element type.
type TableType struct {
	Limits Limits
}

// GlobalType is a global's declared value type and mutability.
type GlobalType struct {
	Type    value.ValueType
	Mutable bool
}

// GlobalDesc is one entry of the global section: a type plus the raw
// constant-expression bytes that produce its initial value.
type GlobalDesc struct {
	Type GlobalType
	Init []byte
}

// ImportKind distinguishes the importable external kinds. The MVP loader
// in this implementation resolves function and memory imports; table and
// global imports are decoded but rejected at load time (see Non-goals).
type ImportKind byte

const (
	ImportFunc ImportKind = iota
	ImportTable
	ImportMemory
	ImportGlobal
)

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Kind   ImportKind
	// Exactly one of the following is populated, selected by Kind.
	TypeIdx    uint32
	Table      TableType
	Mem        MemType
	GlobalType GlobalType
}

// ExportKind distinguishes the four exportable external kinds.
type ExportKind byte

const (
	ExportFunc ExportKind = iota
	ExportTable
	ExportMemory
	ExportGlobal
)

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// LocalEntry is one run-length group of a function's local declarations:
// Count locals of the same Type.
type LocalEntry struct {
	Count uint32
	Type  value.ValueType
}

// FuncBody is the decoded payload of one code-section entry: its local
// declarations and the raw instruction bytes (including the function's
// outermost 0x0B end), ready for the validator in package ir.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// ElementSeg is one entry of the element section: a constant-expression
// offset into a table, and the function indices to place there.
type ElementSeg struct {
	TableIdx uint32
	Offset   []byte
	FuncIdxs []uint32
}

// DataSeg is one entry of the data section: a constant-expression offset
// into a memory, and the bytes to place there.
type DataSeg struct {
	MemIdx uint32
	Offset []byte
	Init   []byte
}

// Module is the flat descriptor aggregate produced by Decode. It mirrors
// the binary format section-for-section and performs no resolution of
// imports, no validation of code and no instantiation of runtime state;
// that is the job of package vm, which combines a Module with an import
// resolver and the IR validator to build a runnable instance.
type Module struct {
	Types    []FuncType
	Imports  []Import
	// FuncTypeIdxs holds the declared type index of each function defined
	// in this module (the function section), in definition order.
	FuncTypeIdxs []uint32
	Tables       []TableType
	Mems         []MemType
	Globals      []GlobalDesc
	Exports      []Export
	Start        *uint32
	Elements     []ElementSeg
	Datas        []DataSeg
	// Bodies is aligned with FuncTypeIdxs: Bodies[i] is the code of the
	// function whose type is FuncTypeIdxs[i].
	Bodies []FuncBody

	// NumImportedFuncs is the count of Imports with Kind == ImportFunc,
	// i.e. the size of the external prefix of the combined function index
	// space (imported functions are indexed before internal ones).
	NumImportedFuncs int
}

// NumFuncs is the total size of the function index space: imported
// functions followed by internally defined ones.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs + len(m.FuncTypeIdxs)
}

// FuncTypeIndex returns the type-section index of function fidx in the
// combined index space, or false if fidx is out of range.
func (m *Module) FuncTypeIndex(fidx int) (uint32, bool) {
	if fidx < 0 || fidx >= m.NumFuncs() {
		return 0, false
	}
	if fidx < m.NumImportedFuncs {
		count := -1
		for _, imp := range m.Imports {
			if imp.Kind == ImportFunc {
				count++
				if count == fidx {
					return imp.TypeIdx, true
				}
			}
		}
		return 0, false
	}
	return m.FuncTypeIdxs[fidx-m.NumImportedFuncs], true
}

// FuncSignature resolves fidx all the way to its FuncType.
func (m *Module) FuncSignature(fidx int) (FuncType, bool) {
	typeIdx, ok := m.FuncTypeIndex(fidx)
	if !ok || int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}
