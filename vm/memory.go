package vm

import "github.com/neri/maystorm-wasm/wasm"

// PageSize is the fixed granularity of Wasm linear memory growth.
const PageSize = 65536

// Memory is one module's linear memory: a growable byte buffer bounded
// by the declared (min, max) page limits.
//
// Grounded on the teacher's vm.go memory slice plus bounds checks, with
// the off-by-one corrected: a read/write of width w at address addr is
// valid when addr+w <= len(data), not addr+w < len(data).
type Memory struct {
	data     []byte
	maxPages uint32
	hasMax   bool
}

func newMemory(t wasm.MemType) *Memory {
	m := &Memory{
		data:     make([]byte, uint64(t.Limits.Min)*PageSize),
		maxPages: t.Limits.Max,
		hasMax:   t.Limits.HasMax,
	}
	return m
}

// Pages is the current size of the memory, in pages.
func (m *Memory) Pages() uint32 { return uint32(len(m.data) / PageSize) }

// Grow extends the memory by delta pages and returns the previous size
// in pages, or -1 if growth would exceed the declared maximum.
func (m *Memory) Grow(delta uint32) int32 {
	cur := m.Pages()
	next := cur + delta
	if next < cur { // overflow
		return -1
	}
	if m.hasMax && next > m.maxPages {
		return -1
	}
	grown := make([]byte, uint64(next)*PageSize)
	copy(grown, m.data)
	m.data = grown
	return int32(cur)
}

func (m *Memory) bounds(addr, width uint32) bool {
	end := uint64(addr) + uint64(width)
	return end <= uint64(len(m.data))
}

// bounds64 checks an effective address computed as a 64-bit sum of a
// base register value and a memarg offset (spec §4.4: "i + memarg.offset
// as u64"), before it has been narrowed to uint32. Narrowing first and
// checking second would let a base+offset pair near 2^32 wrap into a
// small, in-bounds address instead of trapping.
func (m *Memory) bounds64(addr uint64, width uint32) bool {
	end := addr + uint64(width)
	return end <= uint64(len(m.data))
}

func (m *Memory) Size() int { return len(m.data) }

func (m *Memory) ReadByte(addr uint32) (byte, error) {
	if !m.bounds(addr, 1) {
		return 0, trap(OutOfBounds)
	}
	return m.data[addr], nil
}

func (m *Memory) WriteByte(addr uint32, v byte) error {
	if !m.bounds(addr, 1) {
		return trap(OutOfBounds)
	}
	m.data[addr] = v
	return nil
}

func (m *Memory) read(addr uint32, width uint32) (uint64, error) {
	if !m.bounds(addr, width) {
		return 0, trap(OutOfBounds)
	}
	var v uint64
	for i := uint32(0); i < width; i++ {
		v |= uint64(m.data[addr+i]) << (8 * i)
	}
	return v, nil
}

func (m *Memory) write(addr uint32, width uint32, v uint64) error {
	if !m.bounds(addr, width) {
		return trap(OutOfBounds)
	}
	for i := uint32(0); i < width; i++ {
		m.data[addr+i] = byte(v >> (8 * i))
	}
	return nil
}

// ReadBytes copies n bytes starting at addr, for host functions and data
// segment initialization.
func (m *Memory) ReadBytes(addr uint32, n int) ([]byte, error) {
	if !m.bounds(addr, uint32(n)) {
		return nil, trap(OutOfBounds)
	}
	out := make([]byte, n)
	copy(out, m.data[addr:int(addr)+n])
	return out, nil
}

// WriteBytes copies b into memory starting at addr.
func (m *Memory) WriteBytes(addr uint32, b []byte) error {
	if !m.bounds(addr, uint32(len(b))) {
		return trap(OutOfBounds)
	}
	copy(m.data[addr:int(addr)+len(b)], b)
	return nil
}
