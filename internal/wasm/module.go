package wasm

// Module is the immutable, already-validated representation of a decoded
// Wasm binary: every section as a flat, imports-first slice. Decoding and
// validation happen upstream of this package; by the time a *Module exists,
// every index into these slices is known in range and every constant
// expression's opcode is one of the handful the spec allows.
type Module struct {
	TypeSection   []*FunctionType
	ImportSection []*Import

	// FunctionSection is index-correlated with CodeSection: FunctionSection[i]
	// is the TypeSection index of CodeSection[i]'s signature.
	FunctionSection []Index
	CodeSection     []*Code

	TableSection  []*TableType
	MemorySection *MemoryType
	GlobalSection []*Global

	ExportSection []*Export
	StartSection  *Index

	ElementSection   []*ElementSegment
	DataSection      []*DataSegment
	DataCountSection *uint32

	// NameSection carries optional debug names; absent from a binary
	// compiled with symbols stripped.
	NameSection *NameSection
}

// Global is a module-defined (non-imported) global: its type and the
// constant expression producing its initial value.
type Global struct {
	Type *GlobalType
	Init ConstantExpression
}

// ConstantExpression is one of the handful of instruction sequences the
// spec allows in global initializers and element/data segment offsets:
// a single const, global.get, or (under extended-const) a short arithmetic
// expression, terminated by end. Only the leading instruction is represented
// (Opcode and its immediate Data) and evaluated; extended-const arithmetic is
// not evaluated.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// Code is a function body prior to translation: its declared locals (by
// count and type, not yet expanded into a flat per-index array) and the
// validated instruction bytes, ready for the translator to walk directly.
type Code struct {
	LocalTypes []ValueType
	Body       []byte
}

// ElementMode distinguishes how an element segment's references reach their
// table: eagerly copied at instantiation (active), copyable later via
// table.init (passive), or never automatically copied and only used to
// validate declared references (declarative).
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// ElementSegment is one entry of the element section. Active segments carry
// a TableIndex and OffsetExpression; Init is a list of function indices
// (funcref) or, under more recent proposals, arbitrary constant
// expressions, not modeled here since the spec scopes elements to funcref.
type ElementSegment struct {
	Type              ValueType
	Mode              ElementMode
	TableIndex        Index
	OffsetExpression  ConstantExpression
	Init              []Index
}

func (e *ElementSegment) IsActive() bool { return e.Mode == ElementModeActive }

// DataSegment is one entry of the data section. Passive segments have no
// MemoryIndex/OffsetExpression and are only consumed via memory.init.
type DataSegment struct {
	Mode             ElementMode
	MemoryIndex      Index
	OffsetExpression ConstantExpression
	Init             []byte
}

func (d *DataSegment) IsPassive() bool { return d.Mode == ElementModePassive }

// NameSection carries the optional custom "name" section: human-readable
// names used only for debugging/stack traces, never for linking.
type NameSection struct {
	ModuleName    string
	FunctionNames map[Index]string
	LocalNames    map[Index]map[Index]string
}

// TypeOfFunction returns the FunctionType of the function at the given
// index in the function index space (imports first).
func (m *Module) TypeOfFunction(funcIdx Index) *FunctionType {
	importedFuncCount := m.importedFunctionCount()
	if funcIdx < importedFuncCount {
		var i uint32
		for _, imp := range m.ImportSection {
			if imp.Type != ExternTypeFunc {
				continue
			}
			if i == funcIdx {
				return m.TypeSection[imp.DescFunc]
			}
			i++
		}
		return nil
	}
	codeIdx := funcIdx - importedFuncCount
	if int(codeIdx) >= len(m.FunctionSection) {
		return nil
	}
	return m.TypeSection[m.FunctionSection[codeIdx]]
}

func (m *Module) importedFunctionCount() (n uint32) {
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeFunc {
			n++
		}
	}
	return
}
