// Package leb128 decodes the variable-length integers used throughout the
// WebAssembly binary format for indices, counts and signed/unsigned
// immediates. The translator (internal/wazeroir) reads these directly out of
// a validated function body, matching the format at
// https://webassembly.github.io/spec/core/binary/values.html#integers
package leb128

import "fmt"

const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10
)

// DecodeUint32 reads an unsigned LEB128 varint from b starting at offset,
// returning the value and the offset just past it.
func DecodeUint32(b []byte, offset uint64) (uint32, uint64, error) {
	v, n, err := decodeUint(b, offset, 32)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned 64-bit LEB128 varint.
func DecodeUint64(b []byte, offset uint64) (uint64, uint64, error) {
	return decodeUint(b, offset, 64)
}

func decodeUint(b []byte, offset uint64, bitSize int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	maxLen := maxVarintLen32
	if bitSize == 64 {
		maxLen = maxVarintLen64
	}
	for i := 0; i < maxLen; i++ {
		if offset >= uint64(len(b)) {
			return 0, offset, fmt.Errorf("unexpected EOF decoding varuint%d", bitSize)
		}
		c := b[offset]
		offset++
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, offset, nil
		}
		shift += 7
	}
	return 0, offset, fmt.Errorf("varuint%d overflows maximum length %d", bitSize, maxLen)
}

// DecodeInt32 reads a signed 32-bit LEB128 varint, sign-extending the final
// byte's high bits per the spec's "signed LEB128" encoding.
func DecodeInt32(b []byte, offset uint64) (int32, uint64, error) {
	v, n, err := decodeInt(b, offset, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed 64-bit LEB128 varint.
func DecodeInt64(b []byte, offset uint64) (int64, uint64, error) {
	return decodeInt(b, offset, 64)
}

func decodeInt(b []byte, offset uint64, bitSize int) (int64, uint64, error) {
	var result int64
	var shift uint
	maxLen := maxVarintLen32
	if bitSize == 64 {
		maxLen = maxVarintLen64
	}
	var c byte
	for i := 0; i < maxLen; i++ {
		if offset >= uint64(len(b)) {
			return 0, offset, fmt.Errorf("unexpected EOF decoding varint%d", bitSize)
		}
		c = b[offset]
		offset++
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			break
		}
	}
	if shift < uint(bitSize) && c&0x40 != 0 {
		result |= -1 << shift
	}
	return result, offset, nil
}

// DecodeFloat32 reads the 4 raw little-endian bytes of an f32 immediate.
func DecodeFloat32(b []byte, offset uint64) (float32Bits uint32, n uint64, err error) {
	if offset+4 > uint64(len(b)) {
		return 0, offset, fmt.Errorf("unexpected EOF decoding f32")
	}
	v := uint32(b[offset]) | uint32(b[offset+1])<<8 | uint32(b[offset+2])<<16 | uint32(b[offset+3])<<24
	return v, offset + 4, nil
}

// DecodeFloat64 reads the 8 raw little-endian bytes of an f64 immediate.
func DecodeFloat64(b []byte, offset uint64) (float64Bits uint64, n uint64, err error) {
	if offset+8 > uint64(len(b)) {
		return 0, offset, fmt.Errorf("unexpected EOF decoding f64")
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[offset+uint64(i)]) << (8 * i)
	}
	return v, offset + 8, nil
}
