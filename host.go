package wasmi

import (
	"context"

	"github.com/wasmi-go/wasmi/api"
	"github.com/wasmi-go/wasmi/internal/wasm"
)

// HostFunction is the spec §6 host-function callback shape: it receives the
// calling Instance's Module (the "caller") and the raw argument/result
// slice, and may trap by panicking: the executor turns any panic value that
// is not already a trap into a trap with TrapCodeHostTrap that carries the
// panic value as its payload.
type HostFunction func(ctx context.Context, caller api.Module, stack []uint64)

// HostModuleBuilder accumulates host functions under one module name, then
// registers them in a Store in one step so later instances can import them
// by (module, name), the same two-phase build/instantiate split as the
// teacher's HostModuleBuilder, trimmed to this spec's narrower surface:
// functions only, no host-exported memory or tables.
type HostModuleBuilder struct {
	name  string
	funcs []*wasm.HostFunc
}

// NewHostModuleBuilder starts building a host module named name.
func NewHostModuleBuilder(name string) *HostModuleBuilder {
	return &HostModuleBuilder{name: name}
}

// NewFunction adds one exported host function with the given name, typed
// signature, and callback.
func (b *HostModuleBuilder) NewFunction(exportName string, params, results []api.ValueType, fn HostFunction) *HostModuleBuilder {
	b.funcs = append(b.funcs, &wasm.HostFunc{
		Name: exportName,
		Type: &wasm.FunctionType{Params: params, Results: results},
		Go:   wasm.GoFunction(fn),
	})
	return b
}

// Instantiate registers the accumulated functions as a module in store,
// available afterward to Instance imports under this builder's name. The
// only failure mode is a link-time one (ex a duplicate module name); host
// modules have no start function, so this never returns a *Trap.
func (b *HostModuleBuilder) Instantiate(store *Store) (*Instance, error) {
	callCtx, err := store.store.InstantiateHostModule(b.name, b.funcs)
	if err != nil {
		return nil, wrapInstantiateError(err)
	}
	return &Instance{store: store, callCtx: callCtx}, nil
}
