package wasm

import (
	"fmt"
	"strings"

	"github.com/wasmi-go/wasmi/api"
)

// Index is a module-relative index: into the type, function, table, memory,
// global, element or data space. All spaces are flat arrays indexed from
// zero, imports first, matching the binary format's section layout.
type Index = uint32

// ValueType re-exports api.ValueType so internal/wasm and its dependents
// don't need to import api just for the numeric/reference type tags.
type ValueType = api.ValueType

const (
	ValueTypeI32      = api.ValueTypeI32
	ValueTypeI64      = api.ValueTypeI64
	ValueTypeF32      = api.ValueTypeF32
	ValueTypeF64      = api.ValueTypeF64
	ValueTypeFuncref  = api.ValueTypeFuncref
	ValueTypeExternref = api.ValueTypeExternref
)

// FunctionTypeID is a Store-scoped identity for a structural FunctionType,
// interned by Store.getFunctionTypeID. call_indirect compares these instead
// of FunctionType.String() at call time, turning the signature check into an
// integer comparison.
type FunctionTypeID uint32

// FunctionType is a function signature. Two FunctionTypes are the same Wasm
// type if and only if their Params and Results are element-wise equal;
// instantiation-time import matching and call_indirect's runtime type check
// both compare by this structural identity rather than by type-section
// index, since imported/indirect callees may come from a module with a
// differently-ordered type section.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType

	// key memoizes String() so repeated structural-equality checks (import
	// matching, call_indirect, FunctionTypeID interning) don't re-render it.
	key string
}

// String renders a FunctionType as "(param i32 i64) -> (result i32)", used
// both for human-readable errors and as the structural-equality memo key.
func (t *FunctionType) String() string {
	if t.key != "" {
		return t.key
	}
	var sb strings.Builder
	sb.WriteString("(")
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(api.ValueTypeName(p))
	}
	sb.WriteString(") -> (")
	for i, r := range t.Results {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(api.ValueTypeName(r))
	}
	sb.WriteString(")")
	t.key = sb.String()
	return t.key
}

// EqualsSignature reports whether t and other describe the same signature,
// ignoring any difference in where each was declared.
func (t *FunctionType) EqualsSignature(params, results []ValueType) bool {
	if len(t.Params) != len(params) || len(t.Results) != len(results) {
		return false
	}
	for i := range params {
		if t.Params[i] != params[i] {
			return false
		}
	}
	for i := range results {
		if t.Results[i] != results[i] {
			return false
		}
	}
	return true
}

// ParamNumInUint64 and ResultNumInUint64 count the 64-bit value-stack slots
// a call into/out of this signature occupies; every Wasm value type,
// including v128 callers would need two slots for, fits one uint64 slot
// here since SIMD is out of scope.
func (t *FunctionType) ParamNumInUint64() int  { return len(t.Params) }
func (t *FunctionType) ResultNumInUint64() int { return len(t.Results) }

// Limits bounds a table or memory's size, in table elements or memory pages
// respectively. Max, when present, is enforced by both validation (against
// any importing module's expectations) and by Grow.
type Limits struct {
	Min uint32
	Max *uint32
}

// MemoryType is a memory's element type (always 64KiB pages) and Limits.
type MemoryType struct {
	Min uint32
	Max *uint32
	// Shared marks a memory importable/exportable across multiple stores
	// under the threads proposal. No concurrent-store support exists (spec §9
	// is explicit that a Store is single-threaded), and no code path reads
	// this field: a module declaring a shared memory is not rejected, and its
	// memory is instantiated like any other.
	Shared bool
}

func (m *MemoryType) Limits() Limits { return Limits{Min: m.Min, Max: m.Max} }

// TableType is a table's element type, always a reference type, and Limits.
type TableType struct {
	ElemType ValueType
	Min      uint32
	Max      *uint32
}

func (t *TableType) Limits() Limits { return Limits{Min: t.Min, Max: t.Max} }

// GlobalType is a global's value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ExternType discriminates the 4 kinds of importable/exportable entity.
type ExternType = api.ExternType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
)

// Import describes one entry of the import section: the (module, name) pair
// other modules or host registrations must satisfy, and which space
// DescFunctionTypeIndex/DescTable/DescMemory/DescGlobal applies to per Type.
type Import struct {
	Type   ExternType
	Module string
	Name   string

	DescFunc   Index
	DescTable  *TableType
	DescMem    *MemoryType
	DescGlobal *GlobalType
}

// Export describes one entry of the export section: a public name bound to
// an index in one of the 4 spaces.
type Export struct {
	Type  ExternType
	Name  string
	Index Index
}

func (e ExternTypeMismatchError) Error() string {
	return fmt.Sprintf("export %q: expected %s, but was %s", e.Name, api.ExternTypeName(e.Expected), api.ExternTypeName(e.Actual))
}

// ExternTypeMismatchError is returned when resolving an import whose
// (module, name) pair exists but as the wrong kind of extern.
type ExternTypeMismatchError struct {
	Name     string
	Expected ExternType
	Actual   ExternType
}
