package wasm

import (
	"context"
	"reflect"

	"github.com/wasmi-go/wasmi/api"
)

// FunctionKind distinguishes a function implemented by translated Wasm IR
// from one implemented directly in Go.
type FunctionKind byte

const (
	FunctionKindWasm FunctionKind = iota
	FunctionKindGo
)

// GoFunction is a host function body. stack is both the argument and result
// slot array: on entry it holds len(Type.Params) arguments; the function
// must leave exactly len(Type.Results) values in it before returning,
// matching the executor's in-place host-call convention (spec §4.3's
// "argument/result slice" host-call hygiene rule, avoiding a separate
// allocation per call).
type GoFunction func(ctx context.Context, mod api.Module, stack []uint64)

// FunctionInstance is a Store-confined function, either translated Wasm IR
// or a host callback.
type FunctionInstance struct {
	Kind FunctionKind
	Type *FunctionType

	// LocalTypes and Body are set when Kind == FunctionKindWasm; Body is the
	// raw validated instruction stream prior to translation.
	LocalTypes []ValueType
	Body       []byte

	// Code is the translated register IR. The engine fills it for every
	// Wasm-defined function when the module is instantiated
	// (NewModuleEngine); nil before that.
	Code interface{}

	// Go is set when Kind == FunctionKindGo.
	Go GoFunction

	// Module is the defining ModuleInstance, set once the function has been
	// attached to one by Store.Instantiate.
	Module *ModuleInstance

	// TypeID is this store's interned identity for Type, used for the O(1)
	// call_indirect signature check.
	TypeID FunctionTypeID

	// Idx is this function's position in its module's function index space.
	Idx Index

	// DebugName augments traps and stack traces; see wasmdebug.ErrorBuilder.
	DebugName string
}

func (f *FunctionInstance) Definition() api.FunctionDefinition { return functionDefinition{f} }

type functionDefinition struct{ f *FunctionInstance }

func (d functionDefinition) ModuleName() string {
	if d.f.Module == nil {
		return ""
	}
	return d.f.Module.ModuleName
}
func (d functionDefinition) Index() uint32    { return d.f.Idx }
func (d functionDefinition) Name() string     { return d.f.DebugName }
func (d functionDefinition) DebugName() string { return d.f.DebugName }
func (d functionDefinition) Import() (string, string, bool) {
	return "", "", false
}
func (d functionDefinition) ExportNames() []string      { return nil }
func (d functionDefinition) GoFunc() *reflect.Value {
	if d.f.Go == nil {
		return nil
	}
	v := reflect.ValueOf(d.f.Go)
	return &v
}
func (d functionDefinition) ParamTypes() []api.ValueType { return d.f.Type.Params }
func (d functionDefinition) ParamNames() []string        { return nil }
func (d functionDefinition) ResultTypes() []api.ValueType { return d.f.Type.Results }
