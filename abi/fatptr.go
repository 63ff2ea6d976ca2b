package abi

import (
	"fmt"

	"github.com/wippyai/fp-bridge/errors"
)

// FatPtr packs a linear-memory offset and a byte length into one integer.
// The offset occupies the high 32 bits and the length the low 32 bits.
type FatPtr uint64

const (
	// ExtensionMask selects the reserved top byte of the length half.
	ExtensionMask uint32 = 0xff000000

	// MaxBufferLen is the largest length a FatPtr can carry without
	// touching the extension bits.
	MaxBufferLen = 1<<24 - 1

	// MallocAlignment is the alignment of every buffer handed across the boundary.
	MallocAlignment = 16
)

// ToFatPtr packs ptr and length.
func ToFatPtr(ptr, length uint32) FatPtr {
	return FatPtr(uint64(ptr)<<32 | uint64(length))
}

// FromFatPtr unpacks a FatPtr into its offset and length.
func FromFatPtr(fp FatPtr) (ptr, length uint32) {
	return uint32(fp >> 32), uint32(fp)
}

func (fp FatPtr) Ptr() uint32 { return uint32(fp >> 32) }

// Len returns the raw low half, extension bits included.
func (fp FatPtr) Len() uint32 { return uint32(fp) }

// IsZero reports whether fp is the "no result" sentinel.
func (fp FatPtr) IsZero() bool { return fp == 0 }

// ExtensionBits returns the reserved bits of the length half.
func (fp FatPtr) ExtensionBits() uint32 {
	return uint32(fp) & ExtensionMask
}

// Validate returns a protocol violation when extension bits are set.
func (fp FatPtr) Validate() error {
	if bits := fp.ExtensionBits(); bits != 0 {
		return errors.ProtocolViolation(errors.KindInvalidFatPtr,
			fmt.Sprintf("unknown extension bits 0x%08x in fat pointer 0x%016x", bits, uint64(fp)))
	}
	return nil
}

func (fp FatPtr) String() string {
	return fmt.Sprintf("fatptr(0x%x+%d)", fp.Ptr(), fp.Len())
}

// CheckBufferLen reports a protocol violation for buffers that would spill
// into the extension bits.
func CheckBufferLen(n int) error {
	if n < 0 || n > MaxBufferLen {
		return errors.ProtocolViolation(errors.KindBufferTooLarge,
			fmt.Sprintf("buffer of %d bytes exceeds %d", n, MaxBufferLen))
	}
	return nil
}
