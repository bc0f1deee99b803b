// Package interpreter is the only wasm.Engine implementation: it runs the
// register IR internal/wazeroir produces directly, with no further
// compilation step. Functions are translated once, eagerly, when their
// defining module is instantiated (NewModuleEngine), and the resulting
// wazeroir.CompiledBody is cached on the wasm.FunctionInstance itself so an
// imported function is never translated twice.
package interpreter

import (
	"context"
	"fmt"

	"github.com/wasmi-go/wasmi/internal/buildoptions"
	"github.com/wasmi-go/wasmi/internal/wasm"
	"github.com/wasmi-go/wasmi/internal/wasmdebug"
	"github.com/wasmi-go/wasmi/internal/wazeroir"
)

var callStackCeiling = buildoptions.CallStackCeiling

// engine is the interpreter's wasm.Engine. It carries no state of its own:
// every module's compiled functions live on that module's own
// FunctionInstances, so nothing here is keyed by module identity.
type engine struct {
	enabledFeatures wasm.Features
}

// NewEngine returns the interpreter implementation of wasm.Engine.
func NewEngine(enabledFeatures wasm.Features) wasm.Engine {
	return &engine{enabledFeatures: enabledFeatures}
}

// moduleEngine implements wasm.ModuleEngine for one instantiated module.
type moduleEngine struct {
	name string
	// functions is index-correlated with the module's function index space,
	// imports first, same as wasm.ModuleInstance.Functions.
	functions []*wasm.FunctionInstance
}

// NewModuleEngine implements the same method as documented on wasm.Engine.
// It eagerly translates every function body the module itself defines (not
// its imports, already translated by their own defining module) and caches
// the result on each FunctionInstance's Code field.
func (e *engine) NewModuleEngine(name string, module *wasm.Module, importedFunctions, moduleFunctions []*wasm.FunctionInstance) (wasm.ModuleEngine, error) {
	me := &moduleEngine{name: name}
	me.functions = append(me.functions, importedFunctions...)

	for _, f := range moduleFunctions {
		if f.Kind != wasm.FunctionKindWasm {
			continue
		}
		body, err := wazeroir.Compile(module, f.Type, f.LocalTypes, f.Body)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", f.DebugName, err)
		}
		f.Code = body
	}
	me.functions = append(me.functions, moduleFunctions...)

	return me, nil
}

// CreateFuncElementInstance implements the same method as documented on
// wasm.ModuleEngine: it resolves a passive element segment's function
// indices into funcref References pointing at this module's own function
// index space.
func (me *moduleEngine) CreateFuncElementInstance(funcIndexes []wasm.Index) *wasm.ElementInstance {
	refs := make([]wasm.Reference, len(funcIndexes))
	for i, idx := range funcIndexes {
		refs[i] = wasm.FunctionReference(me.functions[idx])
	}
	return &wasm.ElementInstance{References: refs, Type: wasm.ValueTypeFuncref}
}

// Call implements the same method as documented on wasm.ModuleEngine. It
// recovers any trap panicked by the dispatch loop and converts it into a
// plain error carrying a backtrace, per wasmdebug's contract: nothing
// escapes Call as a bare Go panic except a genuine internal invariant
// violation (a bug), which is deliberately left to crash loudly instead of
// being reported as if the Wasm module caused it.
func (me *moduleEngine) Call(ctx context.Context, callCtx *wasm.CallContext, idx wasm.Index, params []uint64) (results []uint64, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	f := me.functions[idx]

	ce := &callEngine{ctx: ctx, callCtx: callCtx, builder: wasmdebug.NewErrorBuilder()}
	defer func() {
		if r := recover(); r != nil {
			// Walk whatever frames the panic left open, innermost first
			// (popFrame pops from the tail), building the backtrace before
			// FromRecovered renders it.
			for len(ce.frames) > 0 {
				frame := ce.popFrame()
				ce.builder.AddFrame(frame.DebugName, frame.Type.Params, frame.Type.Results)
			}
			err = ce.builder.FromRecovered(r)
		}
	}()

	if f.Kind == wasm.FunctionKindGo {
		ce.pushFrame(f)
		results = ce.callHostFunction(f, params)
		ce.popFrame()
		return results, nil
	}
	results = ce.callFunction(f, params)
	return results, nil
}

// callGoFunction invokes a host-defined function using the in-place
// argument/result stack convention documented on wasm.GoFunction.
func callGoFunction(ctx context.Context, callCtx *wasm.CallContext, f *wasm.FunctionInstance, params []uint64) []uint64 {
	n := len(f.Type.Params)
	if len(f.Type.Results) > n {
		n = len(f.Type.Results)
	}
	stack := make([]uint64, n)
	copy(stack, params)
	f.Go(ctx, callCtx.ModuleInstance(), stack)
	return stack[:len(f.Type.Results)]
}
