package fpbridge

import (
	"context"

	"github.com/wippyai/fp-bridge/abi"
)

// Memory represents guest linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of guest linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates buffers in guest linear memory through the guest's
// exported allocator. Buffers are 16-byte aligned and exactly as long as
// requested.
type Allocator interface {
	Malloc(ctx context.Context, n uint32) (abi.FatPtr, error)
	Free(ctx context.Context, fp abi.FatPtr) error
}
