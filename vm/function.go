package vm

import (
	"github.com/neri/maystorm-wasm/ir"
	"github.com/neri/maystorm-wasm/value"
	"github.com/neri/maystorm-wasm/wasm"
)

// FuncKind distinguishes the two origins a function in the combined
// index space can have, per spec §3: imported functions carry a host
// callback, internal functions carry a validated code block.
type FuncKind int

const (
	FuncImported FuncKind = iota
	FuncInternal
)

// Function is one entry of the module's combined function index space.
// Exactly one of Host (imported) or Code (internal) is populated,
// selected by Kind.
type Function struct {
	Index      int
	TypeIndex  uint32
	Sig        wasm.FuncType
	Kind       FuncKind
	Code       *ir.CodeBlock
	Host       HostFunc
	ExportName string // "" unless this function is exported
}

// HostFunc is the fixed signature every resolved import must satisfy
// (spec §6): called synchronously by the interpreter with the owning
// module (for memory/global access) and the typed argument list.
type HostFunc func(mod *Module, args []value.Value) (value.Value, error)

// Resolver is the caller-supplied import resolver (spec §6), invoked
// once per function import at load time. A resolver that cannot satisfy
// an import should return a DynamicLinkError.
type Resolver func(moduleName, fieldName string, sig wasm.FuncType) (HostFunc, error)
