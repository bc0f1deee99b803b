// Package wazeroir translates a validated Wasm function body into a compact
// register-based instruction stream the executor (internal/engine/interpreter)
// runs directly, with no further interpretation of stack-machine semantics
// at run time.
package wazeroir

import "github.com/wasmi-go/wasmi/internal/wasm"

// OperandKind discriminates the provenance of an abstract operand-stack
// entry during translation. None of these exist once translation is done;
// the executor only ever sees register indices.
type OperandKind byte

const (
	// OperandKindLocal refers to local variable i directly; reads of it
	// lower to whatever register local i already lives in.
	OperandKindLocal OperandKind = iota
	// OperandKindConst is a compile-time-known value, not yet materialized
	// into any register. Folds through arithmetic without emitting code.
	OperandKindConst
	// OperandKindTemp is a virtual register holding a previously computed,
	// not-yet-consumed value.
	OperandKindTemp
	// OperandKindPreserved is a Temp created specifically to protect a
	// local's prior value from a subsequent local.set/tee; semantically
	// identical to Temp at consumption time, kept distinct only so the
	// translator's bookkeeping reads clearly.
	OperandKindPreserved
)

// Operand is one entry of the translator's abstract operand stack.
type Operand struct {
	Kind OperandKind
	Type wasm.ValueType

	// LocalIndex is valid when Kind == OperandKindLocal.
	LocalIndex uint32

	// Register is valid when Kind is Temp or Preserved: the virtual
	// register (value-stack offset from the frame base) holding the value.
	Register uint32

	// ConstValue is valid when Kind == OperandKindConst: the raw 64-bit
	// encoding of the constant.
	ConstValue uint64

	// fusable is false when this operand was produced inside a divergent
	// block (one exited early via a branch); such a value must not be
	// folded into a downstream instruction's operand slot, since a branch
	// may have skipped its computation on some paths reaching the consumer.
	fusable bool
}

func localOperand(idx uint32, t wasm.ValueType) Operand {
	return Operand{Kind: OperandKindLocal, LocalIndex: idx, Type: t, fusable: true}
}

func constOperand(v uint64, t wasm.ValueType) Operand {
	return Operand{Kind: OperandKindConst, ConstValue: v, Type: t, fusable: true}
}

func tempOperand(reg uint32, t wasm.ValueType, fusable bool) Operand {
	return Operand{Kind: OperandKindTemp, Register: reg, Type: t, fusable: fusable}
}

func (o Operand) isConst() bool { return o.Kind == OperandKindConst }

// register returns the value-stack slot this operand reads from once
// materialized; callers must have already ensured Kind != OperandKindConst.
func (o Operand) register(localBase func(uint32) uint32) uint32 {
	if o.Kind == OperandKindLocal {
		return localBase(o.LocalIndex)
	}
	return o.Register
}
