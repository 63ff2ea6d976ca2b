package abi

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/fp-bridge/errors"
)

// Status is the first word of an AsyncValue record.
type Status uint32

const (
	StatusPending Status = 0
	StatusReady   Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Layout of the shared record: three little-endian u32 words, no padding.
const (
	AsyncValueSize = 12

	StatusOffset = 0
	PtrOffset    = 4
	LenOffset    = 8
)

// AsyncValue is the memory-resident record of a pending or ready result.
// Ptr and Len are meaningless while Status is pending.
type AsyncValue struct {
	Status Status
	Ptr    uint32
	Len    uint32
}

// Result returns the payload pointer of a ready value.
func (v AsyncValue) Result() FatPtr {
	return ToFatPtr(v.Ptr, v.Len)
}

// Check rejects status words other than pending and ready.
func (v AsyncValue) Check() error {
	switch v.Status {
	case StatusPending, StatusReady:
		return nil
	}
	return errors.ProtocolViolation(errors.KindInvalidStatus,
		fmt.Sprintf("async value has unknown status %d", uint32(v.Status)))
}

// Encode writes the record into dst, which must hold AsyncValueSize bytes.
func (v AsyncValue) Encode(dst []byte) {
	_ = dst[AsyncValueSize-1]
	binary.LittleEndian.PutUint32(dst[StatusOffset:], uint32(v.Status))
	binary.LittleEndian.PutUint32(dst[PtrOffset:], v.Ptr)
	binary.LittleEndian.PutUint32(dst[LenOffset:], v.Len)
}

// Bytes returns the wire form of the record.
func (v AsyncValue) Bytes() []byte {
	buf := make([]byte, AsyncValueSize)
	v.Encode(buf)
	return buf
}

// DecodeAsyncValue reads a record from src.
func DecodeAsyncValue(src []byte) (AsyncValue, error) {
	if len(src) < AsyncValueSize {
		return AsyncValue{}, errors.InvalidData(errors.PhaseDecode, nil,
			fmt.Sprintf("async value record needs %d bytes, got %d", AsyncValueSize, len(src)))
	}
	return AsyncValue{
		Status: Status(binary.LittleEndian.Uint32(src[StatusOffset:])),
		Ptr:    binary.LittleEndian.Uint32(src[PtrOffset:]),
		Len:    binary.LittleEndian.Uint32(src[LenOffset:]),
	}, nil
}
