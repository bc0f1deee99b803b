// Package buildoptions centralizes constants that affect the runtime
// behavior of the engine but aren't worth exposing as configuration.
package buildoptions

// CallStackCeiling is the maximum number of active call frames in a single
// invocation of moduleEngine.Call. Exceeding this traps (in
// callEngine.pushFrame) with wasmruntime.ErrRuntimeCallStackOverflow.
//
// 2000 is the same order of magnitude Go's own goroutine stack growth uses
// before the runtime panics, and is comfortably deep enough for the
// recursive benchmarks in the conformance suite (e.g. fac-rec). A non-tail
// Wasm call recurses on the Go stack (invoke -> callFunction -> run), so
// this ceiling also bounds the interpreter's own Go call depth; tail calls
// reuse the current frame and add no depth.
var CallStackCeiling = 2000

// ValueStackCeiling is the maximum number of uint64 cells a single store's
// shared value stack may grow to. Exceeding this traps with
// wasmruntime.ErrRuntimeValueStackOverflow.
var ValueStackCeiling = 1 << 22
