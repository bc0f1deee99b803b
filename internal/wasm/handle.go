package wasm

import "fmt"

// Handle is a generational reference into one of a Store's arenas (memories,
// tables, globals, functions or instances). Pairing a dense arena index with
// a generation counter lets a Store recycle slots (module teardown, wrapping
// a deterministic fuzzing session) without handing out a stale index that
// happens to alias a newer, unrelated entity: anyone still holding an old
// Handle fails fast with StaleHandle instead of reading garbage.
type Handle struct {
	index      uint32
	generation uint32
}

// NilHandle is the zero value, never returned by a live arena allocation.
var NilHandle = Handle{}

func (h Handle) IsNil() bool { return h == NilHandle }

// arena is a generational slot allocator. Each slot's generation increments
// every time it's freed, so Handles captured before a Free become detectably
// stale rather than silently resolving to whatever reoccupies the slot.
type arena[T any] struct {
	slots       []T
	generations []uint32
	free        []uint32
}

func newArena[T any]() *arena[T] {
	return &arena[T]{}
}

// Alloc stores v in a free (or new) slot and returns its Handle.
func (a *arena[T]) Alloc(v T) Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = v
		return Handle{index: idx, generation: a.generations[idx]}
	}
	idx := uint32(len(a.slots))
	a.slots = append(a.slots, v)
	a.generations = append(a.generations, 0)
	return Handle{index: idx, generation: 0}
}

// Free recycles h's slot, bumping its generation so any copies of h still in
// use are recognized as stale on their next Resolve.
func (a *arena[T]) Free(h Handle) {
	if int(h.index) >= len(a.slots) {
		return
	}
	var zero T
	a.slots[h.index] = zero
	a.generations[h.index]++
	a.free = append(a.free, h.index)
}

// Resolve returns the value h refers to, or StaleHandle if h's generation no
// longer matches the slot's (freed since h was obtained) or the index was
// never allocated.
func (a *arena[T]) Resolve(h Handle) (T, error) {
	var zero T
	if int(h.index) >= len(a.slots) {
		return zero, &StaleHandleError{h}
	}
	if a.generations[h.index] != h.generation {
		return zero, &StaleHandleError{h}
	}
	return a.slots[h.index], nil
}

// StaleHandleError is returned when resolving a Handle whose slot has since
// been freed and possibly reused by a newer entity.
type StaleHandleError struct {
	Handle Handle
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("stale handle: index %d generation %d no longer live", e.Handle.index, e.Handle.generation)
}

// CrossStoreImportError is returned when a Handle minted by one Store is
// resolved against a different Store. Every arena lives on exactly one
// Store, and Store is explicitly single-threaded-per-instance (spec §9), so
// this only fires on a programming error in the embedder, never as a result
// of concurrent access.
type CrossStoreImportError struct {
	EntityKind string
}

func (e *CrossStoreImportError) Error() string {
	return fmt.Sprintf("%s handle belongs to a different store", e.EntityKind)
}
