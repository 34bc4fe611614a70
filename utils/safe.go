// Package utils provides utility functions for axiom.
// This file contains bounded decoding helpers that prevent integer overflow
// and denial-of-service via large allocations.

package utils

import (
	"encoding/binary"
	"errors"
	"math"
)

// Maximum allowed lengths for decoded data.
const (
	// MaxVectorLength is the maximum allowed length for vectors (secrets, ciphertext masks).
	MaxVectorLength = 1 << 14

	// MaxMatrixElements is the maximum allowed number of elements in a public matrix.
	MaxMatrixElements = 1 << 24 // 16M elements

	// MaxMessageSize is the maximum allowed size of a single framed field.
	MaxMessageSize = 1 << 20 // 1MB

	// MaxPayloadLength is the maximum allowed payload length for serialized data.
	MaxPayloadLength = 1 << 28 // 256MB
)

var (
	// ErrOverflow indicates an integer overflow occurred.
	ErrOverflow = errors.New("integer overflow")

	// ErrExceedsLimit indicates a value exceeds the allowed limit.
	ErrExceedsLimit = errors.New("value exceeds allowed limit")

	// ErrInvalidLength indicates an invalid length value.
	ErrInvalidLength = errors.New("invalid length")

	// ErrTruncated indicates the input ended early.
	ErrTruncated = errors.New("truncated input")
)

// SafeMultiply multiplies two non-negative integers and returns an error if overflow occurs.
func SafeMultiply(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, ErrInvalidLength
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// SafeReadLength reads a uint32 length from data at offset, validates it, and returns the value.
// Returns error if not enough bytes available or length exceeds maxAllowed.
func SafeReadLength(data []byte, offset, maxAllowed int) (length int, newOffset int, err error) {
	if offset < 0 || offset+4 > len(data) {
		return 0, offset, ErrTruncated
	}
	raw := binary.LittleEndian.Uint32(data[offset:])
	if uint64(raw) > uint64(maxAllowed) {
		return 0, offset, ErrExceedsLimit
	}
	return int(raw), offset + 4, nil
}

// ValidateSliceAccess checks that accessing data[offset:offset+size] is safe.
func ValidateSliceAccess(data []byte, offset, size int) error {
	if offset < 0 || size < 0 {
		return ErrInvalidLength
	}
	if offset+size < offset {
		return ErrOverflow
	}
	if offset+size > len(data) {
		return ErrTruncated
	}
	return nil
}

// ReadUint64 reads a little-endian uint64 at offset.
func ReadUint64(data []byte, offset int) (uint64, int, error) {
	if err := ValidateSliceAccess(data, offset, 8); err != nil {
		return 0, offset, err
	}
	return binary.LittleEndian.Uint64(data[offset:]), offset + 8, nil
}

// ReadBytes reads a length-prefixed byte field at offset.
func ReadBytes(data []byte, offset, maxAllowed int) ([]byte, int, error) {
	n, off, err := SafeReadLength(data, offset, maxAllowed)
	if err != nil {
		return nil, offset, err
	}
	if err := ValidateSliceAccess(data, off, n); err != nil {
		return nil, offset, err
	}
	out := make([]byte, n)
	copy(out, data[off:off+n])
	return out, off + n, nil
}

// AppendBytes appends a 4-byte little-endian length followed by b.
func AppendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}
