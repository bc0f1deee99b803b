package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmi-go/wasmi/internal/wasm"
)

// buildModule instantiates a single-function module whose one function has
// the given signature and raw (validated) Wasm bytecode body, translating it
// eagerly through this package's Engine, the way Store.Instantiate does.
func buildModule(t *testing.T, sig *wasm.FunctionType, body []byte) (*wasm.ModuleInstance, *wasm.CallContext) {
	t.Helper()

	module := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{Body: body}},
	}

	f := &wasm.FunctionInstance{
		Kind:      wasm.FunctionKindWasm,
		Type:      sig,
		Body:      body,
		Idx:       0,
		DebugName: "test.fn",
	}

	eng := NewEngine(wasm.Features(0))
	me, err := eng.NewModuleEngine("test", module, nil, []*wasm.FunctionInstance{f})
	require.NoError(t, err)

	mod := &wasm.ModuleInstance{
		ModuleName: "test",
		Functions:  []*wasm.FunctionInstance{f},
		Types:      []*wasm.FunctionType{sig},
		TypeIDs:    []wasm.FunctionTypeID{0},
		Mem:        &wasm.MemoryInstance{},
		Engine:     me,
	}
	f.Module = mod

	store := wasm.NewStore(wasm.Features(0), eng)
	callCtx := wasm.NewCallContext(store, mod)
	mod.CallCtx = callCtx
	return mod, callCtx
}

func call(t *testing.T, sig *wasm.FunctionType, body []byte, params ...uint64) []uint64 {
	t.Helper()
	mod, callCtx := buildModule(t, sig, body)
	results, err := mod.Engine.Call(context.Background(), callCtx, 0, params)
	require.NoError(t, err)
	return results
}

func TestCallEngine_arithmetic(t *testing.T) {
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	results := call(t, sig, body, 40, 2)
	require.Equal(t, []uint64{42}, results)
}

// TestCallEngine_eqzOfAnd exercises the eqz-unary-pop fix end to end: a
// wrong-arity pop here would either panic on an empty stack or silently
// compute the wrong result.
func TestCallEngine_eqzOfAnd(t *testing.T) {
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32And),
		byte(wasm.OpcodeI32Eqz),
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, []uint64{1}, call(t, sig, body, 0b100, 0b010)) // and == 0 -> eqz true
	require.Equal(t, []uint64{0}, call(t, sig, body, 0b110, 0b010)) // and != 0 -> eqz false
}

// TestCallEngine_andNotFusedAgainstNonZero guards the unsound-fusion bug:
// (a & b) == 5 must compare against the literal 5, never get rewritten into
// (a & b) == 0.
func TestCallEngine_andNotFusedAgainstNonZero(t *testing.T) {
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32And),
		byte(wasm.OpcodeI32Const), 5,
		byte(wasm.OpcodeI32Eq),
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, []uint64{1}, call(t, sig, body, 5, 5))
	require.Equal(t, []uint64{0}, call(t, sig, body, 0, 0))
}

func TestCallEngine_divideByZeroTraps(t *testing.T) {
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32DivS),
		byte(wasm.OpcodeEnd),
	}
	mod, callCtx := buildModule(t, sig, body)
	_, err := mod.Engine.Call(context.Background(), callCtx, 0, []uint64{1, 0})
	require.Error(t, err)
}

func TestCallEngine_fibonacciRecursion(t *testing.T) {
	// fib(n) = n < 2 ? n : fib(n-1) + fib(n-2), driven through self-recursive
	// call_indirect-free direct recursion (OpCall against its own index),
	// exercising pushFrame/popFrame depth bookkeeping across nested calls.
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Const), 2,
		byte(wasm.OpcodeI32LtS),
		byte(wasm.OpcodeIf), 0x40,
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeReturn),
		byte(wasm.OpcodeEnd),
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Const), 1,
		byte(wasm.OpcodeI32Sub),
		byte(wasm.OpcodeCall), 0,
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Const), 2,
		byte(wasm.OpcodeI32Sub),
		byte(wasm.OpcodeCall), 0,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	results := call(t, sig, body, 10)
	require.Equal(t, []uint64{55}, results)
}

func TestCallEngine_memoryStoreThenLoad(t *testing.T) {
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32Store), 0, 0, // align=0, offset=0
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Load), 0, 0,
		byte(wasm.OpcodeEnd),
	}
	mod, callCtx := buildModule(t, sig, body)
	mod.Mem.Buffer = make([]byte, wasm.MemoryPageSize)
	results, err := mod.Engine.Call(context.Background(), callCtx, 0, []uint64{4, 123})
	require.NoError(t, err)
	require.Equal(t, []uint64{123}, results)
}

func TestCallEngine_outOfBoundsMemoryAccessTraps(t *testing.T) {
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Load), 0, 0,
		byte(wasm.OpcodeEnd),
	}
	mod, callCtx := buildModule(t, sig, body)
	mod.Mem.Buffer = make([]byte, wasm.MemoryPageSize)
	_, err := mod.Engine.Call(context.Background(), callCtx, 0, []uint64{wasm.MemoryPageSize})
	require.Error(t, err)
}
