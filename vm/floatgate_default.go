//go:build !nofloat

package vm

// floatEnabled gates every f32/f64-typed instruction (spec §9 "Float
// feature"). Enabled by default so a module's floating-point code runs
// through math32/math-backed execFloat; build with the nofloat tag to
// produce a runtime that traps NotSupported on any float instruction
// instead, for embedders that never want transcendental float
// dependencies linked in.
const floatEnabled = true
