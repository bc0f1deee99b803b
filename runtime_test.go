package wasmi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmi-go/wasmi/api"
	"github.com/wasmi-go/wasmi/internal/wasm"
)

func addOneModule() *wasm.Module {
	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Const), 1,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{Body: body}},
		ExportSection:   []*wasm.Export{{Name: "add_one", Type: wasm.ExternTypeFunc, Index: 0}},
	}
}

func TestEngine_CompileAndCall(t *testing.T) {
	engine := NewEngine(NewRuntimeConfig())
	compiled, err := engine.Compile(addOneModule())
	require.NoError(t, err)

	store := engine.NewStore(nil)
	instance, err := NewInstance(context.Background(), store, compiled, "m")
	require.NoError(t, err)

	fn := instance.Func("add_one")
	require.NotNil(t, fn)

	results, err := fn.Call(context.Background(), 41)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestEngine_FuelExhaustionTraps(t *testing.T) {
	engine := NewEngine(NewRuntimeConfig().WithConsumeFuel(true))
	compiled, err := engine.Compile(addOneModule())
	require.NoError(t, err)

	store := engine.NewStore(nil)
	store.SetFuel(0)

	instance, err := NewInstance(context.Background(), store, compiled, "m")
	require.NoError(t, err)

	_, err = instance.Func("add_one").Call(context.Background(), 1)
	require.Error(t, err)
	var trap *Trap
	require.ErrorAs(t, err, &trap)
	require.Equal(t, TrapCodeOutOfFuel, trap.Code)
}

func TestEngine_WithFloatsDisabledRejectsFloatSignature(t *testing.T) {
	engine := NewEngine(NewRuntimeConfig().WithFloats(false))
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeF32},
			Results: []wasm.ValueType{wasm.ValueTypeF32},
		}},
	}
	_, err := engine.Compile(module)
	require.Error(t, err)
}

// TestEngine_LinkErrorIsNotATrap guards the distinction spec §7 draws between
// instantiation-time link failures and runtime traps: a bad import signature
// must come back as a plain error, never as a *Trap (which would otherwise
// misreport it as TrapCodeUnreachable, indistinguishable from an actual Wasm
// unreachable trap).
func TestEngine_LinkErrorIsNotATrap(t *testing.T) {
	engine := NewEngine(NewRuntimeConfig())
	store := engine.NewStore(nil)

	_, err := NewHostModuleBuilder("env").
		NewFunction("f", nil, []api.ValueType{wasm.ValueTypeI32},
			func(ctx context.Context, caller api.Module, stack []uint64) {
				stack[0] = 0
			}).
		Instantiate(store)
	require.NoError(t, err)

	// The importer expects f: () -> (i64), but env.f is () -> (i32).
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI64}}},
		ImportSection: []*wasm.Import{
			{Module: "env", Name: "f", Type: wasm.ExternTypeFunc, DescFunc: 0},
		},
	}
	engine2 := NewEngine(NewRuntimeConfig())
	compiled, err := engine2.Compile(module)
	require.NoError(t, err)

	_, err = NewInstance(context.Background(), store, compiled, "bad-import")
	require.Error(t, err)
	var trap *Trap
	require.False(t, errors.As(err, &trap), "link-time signature mismatch must not be reported as a *Trap")
}

func TestHostModuleBuilder_importedByInstance(t *testing.T) {
	engine := NewEngine(NewRuntimeConfig())
	store := engine.NewStore(nil)

	_, err := NewHostModuleBuilder("env").
		NewFunction("double", []api.ValueType{wasm.ValueTypeI32}, []api.ValueType{wasm.ValueTypeI32},
			func(ctx context.Context, caller api.Module, stack []uint64) {
				stack[0] = stack[0] * 2
			}).
		Instantiate(store)
	require.NoError(t, err)

	sig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeCall), 0,
		byte(wasm.OpcodeEnd),
	}
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{sig},
		ImportSection: []*wasm.Import{
			{Module: "env", Name: "double", Type: wasm.ExternTypeFunc, DescFunc: 0},
		},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{Body: body}},
		ExportSection:   []*wasm.Export{{Name: "run", Type: wasm.ExternTypeFunc, Index: 1}},
	}

	engine2 := NewEngine(NewRuntimeConfig())
	compiled, err := engine2.Compile(module)
	require.NoError(t, err)
	instance, err := NewInstance(context.Background(), store, compiled, "caller")
	require.NoError(t, err)

	results, err := instance.Func("run").Call(context.Background(), 21)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}
