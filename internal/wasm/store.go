package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasmi-go/wasmi/api"
)

// maximumFunctionTypes bounds the number of distinct function signatures a
// Store will intern; far beyond anything a real module declares, it exists
// so a pathological or adversarial module can't exhaust memory via the
// typeIDs map.
const maximumFunctionTypes = 1 << 27

// Store is the runtime home for every module instantiated together: it owns
// the FunctionTypeID namespace used for O(1) call_indirect signature checks
// and the fuel budget shared across all calls made through it.
//
// Store is not safe for concurrent use by multiple goroutines; per spec §9
// callers needing concurrent execution run one Store per goroutine.
type Store struct {
	EnabledFeatures Features
	Engine          Engine

	moduleNames map[string]struct{}
	modules     map[string]*ModuleInstance
	typeIDs     map[string]FunctionTypeID

	// fuel is the remaining execution budget, consulted by the executor's
	// per-basic-block metering when fuel accounting is enabled. A negative
	// value never occurs; exhaustion traps before going negative.
	fuel uint64
	// fuelEnabled gates whether the executor charges fuel at all, since most
	// embeddings never set a budget and the check would be pure overhead.
	fuelEnabled bool

	mux sync.RWMutex
}

func NewStore(enabledFeatures Features, engine Engine) *Store {
	return &Store{
		EnabledFeatures: enabledFeatures,
		Engine:          engine,
		moduleNames:     map[string]struct{}{},
		modules:         map[string]*ModuleInstance{},
		typeIDs:         map[string]FunctionTypeID{},
	}
}

// SetFuel arms the fuel budget; subsequent calls through this Store trap
// with TrapCodeOutOfFuel once the aggregate cost of executed basic blocks
// would exceed it.
func (s *Store) SetFuel(fuel uint64) {
	s.fuel = fuel
	s.fuelEnabled = true
}

// Fuel returns the remaining fuel and whether fuel metering is enabled.
func (s *Store) Fuel() (remaining uint64, enabled bool) { return s.fuel, s.fuelEnabled }

// ConsumeFuel is called by the executor once per basic block; it reports
// false (having not mutated s.fuel) when cost would exceed what remains, so
// the executor can trap on the block's first instruction rather than after
// partially executing it.
func (s *Store) ConsumeFuel(cost uint64) bool {
	if !s.fuelEnabled {
		return true
	}
	if cost > s.fuel {
		return false
	}
	s.fuel -= cost
	return true
}

// ModuleInstance is one instantiated module: resolved imports plus its own
// functions, globals, memory, tables and exports, all addressed directly by
// pointer the way objects within one Store naturally alias each other.
type ModuleInstance struct {
	ModuleName string
	Exports    map[string]*ExportInstance

	Functions []*FunctionInstance
	Globals   []*GlobalInstance
	Tables    []*TableInstance
	Mem       *MemoryInstance
	Types     []*FunctionType
	TypeIDs   []FunctionTypeID

	Engine ModuleEngine

	// CallCtx is this module's own execution context, set once by
	// Store.Instantiate; ExportedFunction's returned api.Function calls back
	// through it so a host holding only an api.Module can still invoke
	// exported Wasm functions.
	CallCtx *CallContext

	DataInstances    [][]byte
	ElementInstances []*ElementInstance
}

// Name implements api.Module.
func (m *ModuleInstance) Name() string { return m.ModuleName }

// String implements fmt.Stringer, part of api.Module.
func (m *ModuleInstance) String() string { return fmt.Sprintf("Module[%s]", m.ModuleName) }

// Memory implements api.Module.
func (m *ModuleInstance) Memory() api.Memory {
	if m.Mem == nil {
		return nil
	}
	return m.Mem
}

// ExportedFunction implements api.Module.
func (m *ModuleInstance) ExportedFunction(name string) api.Function {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeFunc {
		return nil
	}
	return &exportedFunction{callCtx: m.CallCtx, fn: exp.Function}
}

// ExportedTable implements api.Module.
func (m *ModuleInstance) ExportedTable(name string) api.Table {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeTable {
		return nil
	}
	return exp.Table
}

// ExportedMemory implements api.Module.
func (m *ModuleInstance) ExportedMemory(name string) api.Memory {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeMemory {
		return nil
	}
	return exp.Memory
}

// ExportedGlobal implements api.Module.
func (m *ModuleInstance) ExportedGlobal(name string) api.Global {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeGlobal {
		return nil
	}
	return exp.Global
}

// CloseWithExitCode implements api.Module: it simply removes the module from
// its Store, making the name available for re-instantiation. There is no
// sys.ExitError propagation (spec's Non-goals exclude WASI process-exit
// semantics), so exitCode is only recorded for symmetry with the interface.
func (m *ModuleInstance) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	if m.CallCtx != nil {
		m.CallCtx.store.deleteModule(m.ModuleName)
	}
	return nil
}

// Close implements api.Closer, part of api.Module.
func (m *ModuleInstance) Close(ctx context.Context) error { return m.CloseWithExitCode(ctx, 0) }

// exportedFunction is the api.Function returned by ModuleInstance.ExportedFunction.
type exportedFunction struct {
	callCtx *CallContext
	fn      *FunctionInstance
}

func (f *exportedFunction) Definition() api.FunctionDefinition { return f.fn.Definition() }

func (f *exportedFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.callCtx.module.Engine.Call(ctx, f.callCtx, f.fn.Idx, params)
}

// ExportInstance is one exported entity, tagged by which field is valid.
type ExportInstance struct {
	Type     ExternType
	Function *FunctionInstance
	Global   *GlobalInstance
	Memory   *MemoryInstance
	Table    *TableInstance
}

func (m *ModuleInstance) getExport(name string, et ExternType) (*ExportInstance, error) {
	exp, ok := m.Exports[name]
	if !ok {
		return nil, fmt.Errorf("%q is not exported in module %q", name, m.ModuleName)
	}
	if exp.Type != et {
		return nil, &ExternTypeMismatchError{Name: name, Expected: et, Actual: exp.Type}
	}
	return exp, nil
}

func (s *Store) requireModuleName(name string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.moduleNames[name]; ok {
		return fmt.Errorf("module %q has already been instantiated", name)
	}
	s.moduleNames[name] = struct{}{}
	return nil
}

func (s *Store) deleteModule(name string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.modules, name)
	delete(s.moduleNames, name)
}

func (s *Store) addModule(m *ModuleInstance) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.modules[m.ModuleName] = m
}

func (s *Store) Module(name string) *ModuleInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.modules[name]
}

func (s *Store) getFunctionTypeIDs(types []*FunctionType) ([]FunctionTypeID, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	ids := make([]FunctionTypeID, len(types))
	for i, t := range types {
		id, err := s.getFunctionTypeID(t)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) getFunctionTypeID(t *FunctionType) (FunctionTypeID, error) {
	key := t.String()
	id, ok := s.typeIDs[key]
	if !ok {
		if uint32(len(s.typeIDs)) >= maximumFunctionTypes {
			return 0, fmt.Errorf("too many function types in a store")
		}
		id = FunctionTypeID(len(s.typeIDs))
		s.typeIDs[key] = id
	}
	return id, nil
}

// Instantiate resolves module's imports against already-instantiated
// modules in this Store, allocates its own memory/table/global/function
// instances, copies active element and data segments, runs its start
// function if any, and finally registers it under name for later import.
// Any failure after reserving name rolls the reservation back, so a module
// that fails partway through never becomes partially visible to later
// imports (spec §4.4's all-or-nothing instantiation rule).
func (s *Store) Instantiate(ctx context.Context, module *Module, name string) (*CallContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.requireModuleName(name); err != nil {
		return nil, err
	}

	typeIDs, err := s.getFunctionTypeIDs(module.TypeSection)
	if err != nil {
		s.deleteModule(name)
		return nil, err
	}

	importedFunctions, importedGlobals, importedTables, importedMemory, err := s.resolveImports(module)
	if err != nil {
		s.deleteModule(name)
		return nil, err
	}

	m := &ModuleInstance{ModuleName: name, Types: module.TypeSection, TypeIDs: typeIDs}

	m.Globals = append(append(m.Globals, importedGlobals...), buildGlobals(module.GlobalSection, importedGlobals)...)

	m.Tables = append(append(m.Tables, importedTables...), buildTables(module.TableSection)...)

	if importedMemory != nil {
		m.Mem = importedMemory
	} else if module.MemorySection != nil {
		m.Mem = NewMemoryInstance(module.MemorySection)
	}

	m.Functions = append(m.Functions, importedFunctions...)
	moduleFunctions := buildFunctions(module, m, typeIDs, uint32(len(importedFunctions)))
	m.Functions = append(m.Functions, moduleFunctions...)

	m.buildExports(module.ExportSection)
	m.buildDataInstances(module.DataSection)

	if err := m.validateData(module.DataSection); err != nil {
		s.deleteModule(name)
		return nil, err
	}
	if err := m.validateElements(module.ElementSection); err != nil {
		s.deleteModule(name)
		return nil, err
	}

	m.Engine, err = s.Engine.NewModuleEngine(name, module, importedFunctions, moduleFunctions)
	if err != nil {
		s.deleteModule(name)
		return nil, fmt.Errorf("compilation failed: %w", err)
	}

	m.buildElementInstances(module.ElementSection)
	m.applyData(module.DataSection)
	if err := m.applyElements(module.ElementSection); err != nil {
		s.deleteModule(name)
		return nil, err
	}

	callCtx := NewCallContext(s, m)
	m.CallCtx = callCtx

	if module.StartSection != nil {
		if _, err := m.Engine.Call(ctx, callCtx, *module.StartSection, nil); err != nil {
			s.deleteModule(name)
			return nil, fmt.Errorf("start function failed: %w", err)
		}
	}

	s.addModule(m)
	return callCtx, nil
}

// HostFunc describes one function an embedder contributes to a host module,
// the spec §6 "typed signature and callback" shape for host function
// registration; unlike wasm-defined functions there is no Body to translate,
// so the callback runs directly.
type HostFunc struct {
	Name string
	Type *FunctionType
	Go   GoFunction
}

// InstantiateHostModule registers a module made entirely of host functions
// under name, the same way Store.Instantiate registers a wasm-defined one,
// so later Instantiate calls can resolve imports against it by module name
// via resolveImports. There are no locals, memory, tables or globals to
// build: a host module is just its export set.
func (s *Store) InstantiateHostModule(name string, funcs []*HostFunc) (*CallContext, error) {
	if err := s.requireModuleName(name); err != nil {
		return nil, err
	}

	m := &ModuleInstance{ModuleName: name}
	m.Functions = make([]*FunctionInstance, len(funcs))
	m.Types = make([]*FunctionType, len(funcs))
	exports := make([]*Export, len(funcs))

	for i, hf := range funcs {
		id, err := s.getFunctionTypeIDs([]*FunctionType{hf.Type})
		if err != nil {
			s.deleteModule(name)
			return nil, err
		}
		m.Types[i] = hf.Type
		m.TypeIDs = append(m.TypeIDs, id[0])
		m.Functions[i] = &FunctionInstance{
			Kind:      FunctionKindGo,
			Type:      hf.Type,
			Go:        hf.Go,
			Module:    m,
			TypeID:    id[0],
			Idx:       Index(i),
			DebugName: name + "." + hf.Name,
		}
		exports[i] = &Export{Name: hf.Name, Type: ExternTypeFunc, Index: Index(i)}
	}
	m.buildExports(exports)

	var err error
	m.Engine, err = s.Engine.NewModuleEngine(name, &Module{}, nil, m.Functions)
	if err != nil {
		s.deleteModule(name)
		return nil, fmt.Errorf("host module %s: %w", name, err)
	}

	callCtx := NewCallContext(s, m)
	m.CallCtx = callCtx

	s.addModule(m)
	return callCtx, nil
}

func buildGlobals(defs []*Global, imported []*GlobalInstance) []*GlobalInstance {
	out := make([]*GlobalInstance, len(defs))
	for i, g := range defs {
		out[i] = &GlobalInstance{GType: g.Type, Val: executeConstExpressionUint64(imported, out[:i], g.Init)}
	}
	return out
}

func buildTables(defs []*TableType) []*TableInstance {
	out := make([]*TableInstance, len(defs))
	for i, t := range defs {
		out[i] = NewTableInstance(t)
	}
	return out
}

func buildFunctions(module *Module, m *ModuleInstance, typeIDs []FunctionTypeID, importedCount uint32) []*FunctionInstance {
	out := make([]*FunctionInstance, len(module.CodeSection))
	for i, code := range module.CodeSection {
		typeIdx := module.FunctionSection[i]
		idx := importedCount + uint32(i)
		debugName := fmt.Sprintf(".$%d", idx)
		if module.NameSection != nil {
			if n, ok := module.NameSection.FunctionNames[idx]; ok {
				debugName = fmt.Sprintf("%s.%s", module.NameSection.ModuleName, n)
			}
		}
		out[i] = &FunctionInstance{
			Kind:       FunctionKindWasm,
			Type:       module.TypeSection[typeIdx],
			LocalTypes: code.LocalTypes,
			Body:       code.Body,
			Module:     m,
			TypeID:     typeIDs[typeIdx],
			Idx:        idx,
			DebugName:  debugName,
		}
	}
	return out
}

func (m *ModuleInstance) buildExports(exports []*Export) {
	m.Exports = make(map[string]*ExportInstance, len(exports))
	for _, exp := range exports {
		var ei *ExportInstance
		switch exp.Type {
		case ExternTypeFunc:
			ei = &ExportInstance{Type: exp.Type, Function: m.Functions[exp.Index]}
		case ExternTypeGlobal:
			ei = &ExportInstance{Type: exp.Type, Global: m.Globals[exp.Index]}
		case ExternTypeMemory:
			ei = &ExportInstance{Type: exp.Type, Memory: m.Mem}
		case ExternTypeTable:
			ei = &ExportInstance{Type: exp.Type, Table: m.Tables[exp.Index]}
		}
		m.Exports[exp.Name] = ei
	}
}

func (m *ModuleInstance) buildDataInstances(segments []*DataSegment) {
	for _, d := range segments {
		m.DataInstances = append(m.DataInstances, d.Init)
	}
}

func (m *ModuleInstance) validateData(segments []*DataSegment) error {
	for _, d := range segments {
		if d.IsPassive() {
			continue
		}
		offset := int(executeConstExpressionUint64(m.Globals, nil, d.OffsetExpression))
		if offset < 0 || offset+len(d.Init) > len(m.Mem.Buffer) {
			return fmt.Errorf("data segment out of bounds memory access")
		}
	}
	return nil
}

func (m *ModuleInstance) applyData(segments []*DataSegment) {
	for _, d := range segments {
		if d.IsPassive() {
			continue
		}
		offset := executeConstExpressionUint64(m.Globals, nil, d.OffsetExpression)
		copy(m.Mem.Buffer[offset:], d.Init)
	}
}

func (m *ModuleInstance) validateElements(segments []*ElementSegment) error {
	for _, e := range segments {
		if e.Mode != ElementModeActive {
			continue
		}
		table := m.Tables[e.TableIndex]
		offset := int(executeConstExpressionUint64(m.Globals, nil, e.OffsetExpression))
		if offset < 0 || offset+len(e.Init) > len(table.References) {
			return fmt.Errorf("element segment out of bounds table access")
		}
	}
	return nil
}

func (m *ModuleInstance) buildElementInstances(segments []*ElementSegment) {
	m.ElementInstances = make([]*ElementInstance, len(segments))
	for i, e := range segments {
		if e.Mode == ElementModePassive {
			m.ElementInstances[i] = m.Engine.CreateFuncElementInstance(e.Init)
		}
	}
}

func (m *ModuleInstance) applyElements(segments []*ElementSegment) error {
	for _, e := range segments {
		if e.Mode != ElementModeActive {
			continue
		}
		table := m.Tables[e.TableIndex]
		offset := executeConstExpressionUint64(m.Globals, nil, e.OffsetExpression)
		for i, funcIdx := range e.Init {
			table.References[int(offset)+i] = functionReference(m.Functions[funcIdx])
		}
	}
	return nil
}

func functionReference(f *FunctionInstance) Reference { return FunctionReference(f) }

func (s *Store) resolveImports(module *Module) (
	functions []*FunctionInstance, globals []*GlobalInstance,
	tables []*TableInstance, memory *MemoryInstance, err error,
) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	for idx, imp := range module.ImportSection {
		m, ok := s.modules[imp.Module]
		if !ok {
			return nil, nil, nil, nil, fmt.Errorf("import[%d] %s.%s: module not instantiated", idx, imp.Module, imp.Name)
		}
		exp, err := m.getExport(imp.Name, imp.Type)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("import[%d]: %w", idx, err)
		}
		switch imp.Type {
		case ExternTypeFunc:
			expected := module.TypeSection[imp.DescFunc]
			actual := exp.Function.Type
			if !expected.EqualsSignature(actual.Params, actual.Results) {
				return nil, nil, nil, nil, fmt.Errorf("import[%d] func %s.%s: signature mismatch: %s != %s", idx, imp.Module, imp.Name, expected, actual)
			}
			functions = append(functions, exp.Function)
		case ExternTypeGlobal:
			if imp.DescGlobal.Mutable != exp.Global.GType.Mutable {
				return nil, nil, nil, nil, fmt.Errorf("import[%d] global %s.%s: mutability mismatch", idx, imp.Module, imp.Name)
			}
			if imp.DescGlobal.ValType != exp.Global.GType.ValType {
				return nil, nil, nil, nil, fmt.Errorf("import[%d] global %s.%s: value type mismatch", idx, imp.Module, imp.Name)
			}
			globals = append(globals, exp.Global)
		case ExternTypeTable:
			if imp.DescTable.Min > uint32(len(exp.Table.References)) {
				return nil, nil, nil, nil, fmt.Errorf("import[%d] table %s.%s: minimum size mismatch", idx, imp.Module, imp.Name)
			}
			tables = append(tables, exp.Table)
		case ExternTypeMemory:
			if imp.DescMem.Min > exp.Memory.Min {
				return nil, nil, nil, nil, fmt.Errorf("import[%d] memory %s.%s: minimum size mismatch", idx, imp.Module, imp.Name)
			}
			memory = exp.Memory
		}
	}
	return
}
