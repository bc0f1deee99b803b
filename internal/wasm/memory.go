package wasm

import (
	"context"
	"math"
)

// MemoryPageSize is the fixed page size of a Wasm linear memory, 64KiB.
const (
	MemoryPageSize      = 65536
	MemoryPageSizeInBits = 16
	MemoryMaxPages       = 65536 // 4GiB / MemoryPageSize
)

// MemoryInstance is a Store-confined linear memory. Buffer's length is
// always a multiple of MemoryPageSize; Grow reallocates it in place rather
// than ever shrinking it, matching the spec's monotonic-growth rule.
type MemoryInstance struct {
	Buffer []byte
	Min    uint32
	Max    uint32
	// Shared mirrors MemoryType.Shared; always false (see MemoryType.Shared).
	Shared bool
}

func NewMemoryInstance(t *MemoryType) *MemoryInstance {
	max := MemoryMaxPages
	if t.Max != nil {
		max = int(*t.Max)
	}
	return &MemoryInstance{
		Buffer: make([]byte, uint64(t.Min)*MemoryPageSize),
		Min:    t.Min,
		Max:    uint32(max),
	}
}

func (m *MemoryInstance) Size(context.Context) uint32 {
	return uint32(len(m.Buffer) / MemoryPageSize)
}

// Grow implements api.Memory. It allocates a new, larger buffer and copies
// the old contents in: allocate-then-commit, so a failed allocation (delta
// would exceed Max) leaves the existing Buffer, and any outstanding Read
// slices into it, untouched.
func (m *MemoryInstance) Grow(ctx context.Context, deltaPages uint32) (previousPages uint32, ok bool) {
	current := m.Size(ctx)
	if deltaPages == 0 {
		return current, true
	}
	newPages := uint64(current) + uint64(deltaPages)
	if newPages > uint64(m.Max) {
		return 0, false
	}
	newBuffer := make([]byte, newPages*MemoryPageSize)
	copy(newBuffer, m.Buffer)
	m.Buffer = newBuffer
	return current, true
}

func (m *MemoryInstance) ReadByte(ctx context.Context, offset uint32) (byte, bool) {
	if offset >= uint32(len(m.Buffer)) {
		return 0, false
	}
	return m.Buffer[offset], true
}

func (m *MemoryInstance) ReadUint16Le(ctx context.Context, offset uint32) (uint16, bool) {
	b, ok := m.Read(ctx, offset, 2)
	if !ok {
		return 0, false
	}
	return uint16(b[0]) | uint16(b[1])<<8, true
}

func (m *MemoryInstance) ReadUint32Le(ctx context.Context, offset uint32) (uint32, bool) {
	b, ok := m.Read(ctx, offset, 4)
	if !ok {
		return 0, false
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

func (m *MemoryInstance) ReadUint64Le(ctx context.Context, offset uint32) (uint64, bool) {
	b, ok := m.Read(ctx, offset, 8)
	if !ok {
		return 0, false
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, true
}

func (m *MemoryInstance) ReadFloat32Le(ctx context.Context, offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(ctx, offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

func (m *MemoryInstance) ReadFloat64Le(ctx context.Context, offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(ctx, offset)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

// Read returns a write-through view into Buffer, matching api.Memory.Read's
// documented aliasing contract.
func (m *MemoryInstance) Read(ctx context.Context, offset, byteCount uint32) ([]byte, bool) {
	end, ok := m.addInBounds(offset, byteCount)
	if !ok {
		return nil, false
	}
	return m.Buffer[offset:end], true
}

func (m *MemoryInstance) WriteByte(ctx context.Context, offset uint32, v byte) bool {
	if offset >= uint32(len(m.Buffer)) {
		return false
	}
	m.Buffer[offset] = v
	return true
}

func (m *MemoryInstance) WriteUint16Le(ctx context.Context, offset uint32, v uint16) bool {
	return m.Write(ctx, offset, []byte{byte(v), byte(v >> 8)})
}

func (m *MemoryInstance) WriteUint32Le(ctx context.Context, offset, v uint32) bool {
	return m.Write(ctx, offset, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (m *MemoryInstance) WriteFloat32Le(ctx context.Context, offset uint32, v float32) bool {
	return m.WriteUint32Le(ctx, offset, math.Float32bits(v))
}

func (m *MemoryInstance) WriteUint64Le(ctx context.Context, offset uint32, v uint64) bool {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return m.Write(ctx, offset, b)
}

func (m *MemoryInstance) WriteFloat64Le(ctx context.Context, offset uint32, v float64) bool {
	return m.WriteUint64Le(ctx, offset, math.Float64bits(v))
}

func (m *MemoryInstance) Write(ctx context.Context, offset uint32, v []byte) bool {
	end, ok := m.addInBounds(offset, uint32(len(v)))
	if !ok {
		return false
	}
	copy(m.Buffer[offset:end], v)
	return true
}

func (m *MemoryInstance) addInBounds(offset, length uint32) (uint32, bool) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.Buffer)) {
		return 0, false
	}
	return uint32(end), true
}

// Fill implements memory.fill: every byte in [offset, offset+size) becomes
// val. Per the bulk-memory spec, out-of-bounds is checked against the whole
// range before any byte is written, so a too-long fill traps without
// partially mutating memory.
func (m *MemoryInstance) Fill(offset, size uint32, val byte) bool {
	end, ok := m.addInBounds(offset, size)
	if !ok {
		return false
	}
	buf := m.Buffer[offset:end]
	for i := range buf {
		buf[i] = val
	}
	return true
}

// Copy implements memory.copy, overlap-safe like Go's copy builtin. Bounds
// are validated for both source and destination ranges before anything
// moves.
func (m *MemoryInstance) Copy(dstOffset, srcOffset, size uint32) bool {
	dstEnd, ok := m.addInBounds(dstOffset, size)
	if !ok {
		return false
	}
	srcEnd, ok := m.addInBounds(srcOffset, size)
	if !ok {
		return false
	}
	copy(m.Buffer[dstOffset:dstEnd], m.Buffer[srcOffset:srcEnd])
	return true
}

// Init implements memory.init: copies data[srcOffset:srcOffset+size] from a
// (possibly already-dropped) data segment. Bounds on both the segment and
// memory side are checked before the copy.
func (m *MemoryInstance) Init(data []byte, dstOffset, srcOffset, size uint32) bool {
	dstEnd, ok := m.addInBounds(dstOffset, size)
	if !ok {
		return false
	}
	srcEnd := uint64(srcOffset) + uint64(size)
	if srcEnd > uint64(len(data)) {
		return false
	}
	copy(m.Buffer[dstOffset:dstEnd], data[srcOffset:srcEnd])
	return true
}
