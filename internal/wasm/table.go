package wasm

import (
	"context"
	"unsafe"
)

// tableMaxSize mirrors the spec's implementation-defined table size cap;
// unlike memory's 4GiB ceiling, tables have no binary-format-imposed limit,
// so this is a conservative implementation limit against runaway grow calls.
const tableMaxSize = 1 << 27

// Reference is the raw 64-bit encoding of a funcref or externref table
// element. 0 is the null reference, the zero value and a table's initial
// fill. A funcref reference packs a *FunctionInstance's address, see
// FunctionReference/ResolveFunctionReference; an externref is an opaque
// caller-supplied value round-tripped unexamined, per
// api.EncodeExternref/DecodeExternref.
type Reference = uint64

// TableInstance is a Store-confined table of opaque references.
type TableInstance struct {
	References []Reference
	ElemType   ValueType
	Min        uint32
	Max        *uint32
}

func NewTableInstance(t *TableType) *TableInstance {
	return &TableInstance{
		References: make([]Reference, t.Min),
		ElemType:   t.ElemType,
		Min:        t.Min,
		Max:        t.Max,
	}
}

// Type implements api.Table.
func (t *TableInstance) Type() ValueType { return t.ElemType }

func (t *TableInstance) Size(context.Context) uint32 { return uint32(len(t.References)) }

// Grow implements table.grow: allocate-then-commit, same as
// MemoryInstance.Grow, so a rejected grow (would exceed Max, or the
// implementation ceiling) never touches the existing References slice.
func (t *TableInstance) Grow(ctx context.Context, delta uint32, init Reference) (previousSize uint32, ok bool) {
	current := uint32(len(t.References))
	if delta == 0 {
		return current, true
	}
	newSize := uint64(current) + uint64(delta)
	max := uint64(tableMaxSize)
	if t.Max != nil && uint64(*t.Max) < max {
		max = uint64(*t.Max)
	}
	if newSize > max {
		return 0, false
	}
	grown := make([]Reference, newSize)
	copy(grown, t.References)
	for i := current; i < uint32(newSize); i++ {
		grown[i] = init
	}
	t.References = grown
	return current, true
}

func (t *TableInstance) Get(ctx context.Context, idx uint32) (Reference, bool) {
	if idx >= uint32(len(t.References)) {
		return 0, false
	}
	return t.References[idx], true
}

func (t *TableInstance) Set(ctx context.Context, idx uint32, ref Reference) bool {
	if idx >= uint32(len(t.References)) {
		return false
	}
	t.References[idx] = ref
	return true
}

// Fill implements table.fill, bounds-checked whole-range-first like
// MemoryInstance.Fill.
func (t *TableInstance) Fill(offset, size uint32, ref Reference) bool {
	end := uint64(offset) + uint64(size)
	if end > uint64(len(t.References)) {
		return false
	}
	dst := t.References[offset:end]
	for i := range dst {
		dst[i] = ref
	}
	return true
}

// Copy implements table.copy, overlap-safe.
func (t *TableInstance) Copy(dstOffset, srcOffset, size uint32) bool {
	dstEnd := uint64(dstOffset) + uint64(size)
	srcEnd := uint64(srcOffset) + uint64(size)
	if dstEnd > uint64(len(t.References)) || srcEnd > uint64(len(t.References)) {
		return false
	}
	copy(t.References[dstOffset:dstEnd], t.References[srcOffset:srcEnd])
	return true
}

// Init implements table.init, copying from an (possibly already-dropped)
// element segment's resolved references.
func (t *TableInstance) Init(elems []Reference, dstOffset, srcOffset, size uint32) bool {
	dstEnd := uint64(dstOffset) + uint64(size)
	if dstEnd > uint64(len(t.References)) {
		return false
	}
	srcEnd := uint64(srcOffset) + uint64(size)
	if srcEnd > uint64(len(elems)) {
		return false
	}
	copy(t.References[dstOffset:dstEnd], elems[srcOffset:srcEnd])
	return true
}

// FunctionReference packs f's address as a funcref Reference. A table entry
// or ref.func result is this, not an index, so it resolves to the right
// FunctionInstance even when the referent was defined by a different module
// than the one holding the table (an imported function placed in a local
// table via an active element segment, for instance).
func FunctionReference(f *FunctionInstance) Reference {
	if f == nil {
		return 0
	}
	return Reference(uintptr(unsafe.Pointer(f)))
}

// ResolveFunctionReference reverses FunctionReference. The indirection
// through a pointer-to-uintptr avoids the Go race detector's checkptr
// complaining about "pointer arithmetic result points to invalid
// allocation", the same workaround the interpreter's table-element
// resolution has always needed.
func ResolveFunctionReference(ref Reference) *FunctionInstance {
	if ref == 0 {
		return nil
	}
	p := uintptr(ref)
	return *(**FunctionInstance)(unsafe.Pointer(&p))
}

// ElementInstance holds a passive element segment's resolved references,
// kept alive independently of the table so table.init can run (or
// elem.drop can free it) at any point after instantiation.
type ElementInstance struct {
	References []Reference
	Type       ValueType
	Dropped    bool
}
