package vm

import "github.com/neri/maystorm-wasm/wasm"

// Table is a module's funcref table: a fixed-length array, sized by its
// declared minimum, of function indices into the module's combined
// function index space, or -1 for an empty slot. It has no grow
// operation.
type Table struct {
	entries []int32
	maxLen  uint32
	hasMax  bool
}

func newTable(t wasm.TableType) *Table {
	entries := make([]int32, t.Limits.Min)
	for i := range entries {
		entries[i] = -1
	}
	return &Table{entries: entries, maxLen: t.Limits.Max, hasMax: t.Limits.HasMax}
}

func (t *Table) Len() int { return len(t.entries) }

func (t *Table) Get(idx uint32) (int32, error) {
	if int(idx) >= len(t.entries) {
		return 0, trap(OutOfBounds)
	}
	return t.entries[idx], nil
}

func (t *Table) set(idx uint32, fidx int32) error {
	if int(idx) >= len(t.entries) {
		return trap(OutOfBounds)
	}
	t.entries[idx] = fidx
	return nil
}
