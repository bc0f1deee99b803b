// Package wasmi is the embedder-facing API: compile a decoded module,
// create a store, instantiate it against a set of imports, and call its
// exported functions. It wraps internal/wasm and internal/engine/interpreter
// behind the narrow shape spec §6 describes, the same separation the
// teacher draws between its public wazero package and internal/wasm.
package wasmi

import (
	"context"
	"fmt"

	"github.com/wasmi-go/wasmi/api"
	"github.com/wasmi-go/wasmi/internal/engine/interpreter"
	"github.com/wasmi-go/wasmi/internal/wasm"
)

// Engine is a configured compiler+executor, the spec §6 "Engine(config)"
// result. One Engine can compile many Modules and back many Stores; it
// carries no state beyond its RuntimeConfig.
type Engine struct {
	config RuntimeConfig
}

// NewEngine returns an Engine configured per config.
func NewEngine(config RuntimeConfig) *Engine {
	return &Engine{config: config}
}

// CompiledModule is a module that has passed Module.Compile: its types,
// functions, and segments are fixed. Its function bodies are not translated
// yet: translation to register IR happens when the module is instantiated.
//
// Module.Compile intentionally takes an already-decoded *wasm.Module rather
// than raw .wasm bytes: this repository's scope, per SPEC_FULL.md, stops at
// the translator and executor, not the binary-format decoder. An embedder
// that has .wasm bytes on hand is expected to decode them into a *wasm.Module
// elsewhere (ex with a community decoder) and hand the result here; see
// DESIGN.md for the full rationale.
type CompiledModule struct {
	engine *Engine
	module *wasm.Module
}

// Compile validates config-gated constraints that don't require a full
// binary-format decoder (today: the floats toggle) and returns a
// CompiledModule ready for Instance.New. Translation of each function body
// happens per-instance inside Store's wasm.Engine, the same point the
// teacher's interpreter engine compiles at.
func (e *Engine) Compile(module *wasm.Module) (*CompiledModule, error) {
	if !e.config.floats {
		if err := rejectFloats(module); err != nil {
			return nil, err
		}
	}
	if e.config.ignoreCustomSections {
		module.NameSection = nil
	}
	return &CompiledModule{engine: e, module: module}, nil
}

func rejectFloats(module *wasm.Module) error {
	isFloat := func(t wasm.ValueType) bool { return t == wasm.ValueTypeF32 || t == wasm.ValueTypeF64 }
	for _, t := range module.TypeSection {
		for _, v := range t.Params {
			if isFloat(v) {
				return fmt.Errorf("wasmi: floats disabled by RuntimeConfig, but type %s uses a float parameter", t)
			}
		}
		for _, v := range t.Results {
			if isFloat(v) {
				return fmt.Errorf("wasmi: floats disabled by RuntimeConfig, but type %s uses a float result", t)
			}
		}
	}
	for i, g := range module.GlobalSection {
		if isFloat(g.Type.ValType) {
			return fmt.Errorf("wasmi: floats disabled by RuntimeConfig, but global[%d] is a float", i)
		}
	}
	return nil
}

// Store is one Wasm execution sandbox: a set of instantiated modules
// sharing a function-type namespace, a fuel budget, and host_data opaque to
// the runtime. Per spec §5, a Store is confined to a single goroutine.
type Store struct {
	engine   *Engine
	store    *wasm.Store
	hostData interface{}
}

// NewStore creates a Store from this Engine's configuration, the spec §6
// "Store.new(engine, host_data)" operation. hostData is returned verbatim
// by HostData and is otherwise untouched by wasmi; it is how a host
// function's callback recovers caller-supplied state not representable in
// Wasm value types.
func (e *Engine) NewStore(hostData interface{}) *Store {
	s := &Store{
		engine:   e,
		store:    wasm.NewStore(e.config.enabledFeatures, interpreter.NewEngine(e.config.enabledFeatures)),
		hostData: hostData,
	}
	if e.config.consumeFuel {
		s.store.SetFuel(0)
	}
	return s
}

// HostData returns the value passed to NewStore.
func (s *Store) HostData() interface{} { return s.hostData }

// SetFuel arms the fuel budget; calls through this Store trap with
// TrapCodeOutOfFuel once the budget is exhausted. Calling this when
// RuntimeConfig.WithConsumeFuel(true) was never set still enables metering,
// since an explicit budget is an unambiguous request for it.
func (s *Store) SetFuel(fuel uint64) { s.store.SetFuel(fuel) }

// GetFuel returns the remaining fuel. The second return is false if fuel
// metering was never enabled, in which case the first return is 0 and
// meaningless.
func (s *Store) GetFuel() (uint64, bool) { return s.store.Fuel() }

// Instance is one instantiated module within a Store, the spec §6
// "Instance.new(store, module, imports)" result. imports are resolved by
// module name against modules already registered in the same Store, either
// previous Instances or host modules built with NewHostModuleBuilder: the
// caller is responsible for instantiating dependencies before their
// dependents.
type Instance struct {
	store   *Store
	callCtx *wasm.CallContext
}

// NewInstance instantiates module under name within store. Per spec §7,
// the returned error is one of two kinds: a link-time failure (bad import
// signature, global/table/memory mismatch, an out-of-bounds segment, a
// duplicate module name) comes back as a plain error, while a failure
// during the module's start function comes back as a *Trap with the same
// TrapCode/backtrace shape Func.Call produces. Use errors.As(err, &trap) to
// tell the two apart; see wrapInstantiateError.
func NewInstance(ctx context.Context, store *Store, module *CompiledModule, name string) (*Instance, error) {
	callCtx, err := store.store.Instantiate(ctx, module.module, name)
	if err != nil {
		return nil, wrapInstantiateError(err)
	}
	return &Instance{store: store, callCtx: callCtx}, nil
}

// Module returns the underlying api.Module, exposing the lower-level
// Exported* accessors directly where Extern's narrower Export doesn't fit.
func (i *Instance) Module() api.Module { return i.callCtx.ModuleInstance() }

// Extern is one exported entity: a Func, Global, Memory, or Table. Exactly
// one of the corresponding accessor methods on Instance (Func, Global,
// Memory, Table) will produce a non-nil value for a given export name; the
// others return nil, mirroring api.Module's Exported* family.
type Extern = interface{}

// Export returns the named export as its concrete api type (api.Function,
// api.Global, api.Memory, or api.Table), or nil if no export has that name.
func (i *Instance) Export(name string) Extern {
	mod := i.callCtx.ModuleInstance()
	if f := mod.ExportedFunction(name); f != nil {
		return f
	}
	if g := mod.ExportedGlobal(name); g != nil {
		return g
	}
	if m := mod.ExportedMemory(name); m != nil {
		return m
	}
	if t := mod.ExportedTable(name); t != nil {
		return t
	}
	return nil
}

// Func is the spec §6 Func handle: an exported function plus the Trap
// conversion Call(store, args, results) promises.
type Func struct {
	fn api.Function
}

// Definition describes this function's name, signature, and import/export
// status.
func (f *Func) Definition() api.FunctionDefinition { return f.fn.Definition() }

// Call invokes the function with params encoded per its ParamTypes,
// returning results encoded per its ResultTypes, or a *Trap.
func (f *Func) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	results, err := f.fn.Call(ctx, params...)
	if err != nil {
		return nil, asTrap(err)
	}
	return results, nil
}

// Func returns the named exported function, the spec §6 Func handle whose
// Call(store, args, results) invokes it. It returns nil if name isn't
// exported as a function.
func (i *Instance) Func(name string) *Func {
	fn := i.callCtx.ModuleInstance().ExportedFunction(name)
	if fn == nil {
		return nil
	}
	return &Func{fn: fn}
}

// Global returns the named exported global, or nil if name isn't exported
// as one.
func (i *Instance) Global(name string) api.Global { return i.callCtx.ModuleInstance().ExportedGlobal(name) }

// Memory returns the named exported memory, or nil if name isn't exported
// as one.
func (i *Instance) Memory(name string) api.Memory { return i.callCtx.ModuleInstance().ExportedMemory(name) }

// Table returns the named exported table, or nil if name isn't exported as
// one.
func (i *Instance) Table(name string) api.Table { return i.callCtx.ModuleInstance().ExportedTable(name) }

// Close releases this instance's name in its Store, making it available for
// re-instantiation. When ctx is nil it defaults to context.Background.
func (i *Instance) Close(ctx context.Context) error {
	return i.callCtx.ModuleInstance().Close(ctx)
}
