package wasm

import "context"

// Engine compiles and runs translated Wasm IR. internal/engine/interpreter
// is the only implementation; the interface exists so Store doesn't depend
// on the executor's internals, the same separation the teacher draws
// between its compiler and interpreter engines.
type Engine interface {
	// NewModuleEngine translates every function body in module (or schedules
	// lazy translation, per configuration) and returns a ModuleEngine ready
	// to run them against the given ModuleInstance.
	NewModuleEngine(name string, module *Module, importedFunctions, moduleFunctions []*FunctionInstance) (ModuleEngine, error)
}

// ModuleEngine runs the functions of one instantiated module.
type ModuleEngine interface {
	// Call invokes the function at idx in the module's function index space.
	// params and the returned results are both raw uint64-encoded per
	// FunctionType's ValueTypes.
	Call(ctx context.Context, callCtx *CallContext, idx Index, params []uint64) ([]uint64, error)

	// CreateFuncElementInstance resolves a passive element segment's function
	// indices into this module's Reference encoding.
	CreateFuncElementInstance(funcIndexes []Index) *ElementInstance
}

// CallContext is the default execution context bound to one ModuleInstance:
// the host-visible api.Module plus whatever ambient state (fuel budget,
// Go context) a call through Store.Instantiate or an exported Function
// carries across host/Wasm boundaries.
type CallContext struct {
	store  *Store
	module *ModuleInstance
}

func NewCallContext(s *Store, m *ModuleInstance) *CallContext {
	return &CallContext{store: s, module: m}
}

func (c *CallContext) Store() *Store                 { return c.store }
func (c *CallContext) ModuleInstance() *ModuleInstance { return c.module }
