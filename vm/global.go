package vm

import "github.com/neri/maystorm-wasm/value"

// Global is a module's runtime global cell.
type Global struct {
	Type    value.ValueType
	Mutable bool
	Val     value.Value
}
