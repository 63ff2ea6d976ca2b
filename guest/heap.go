package guest

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
)

// Heap is the guest allocator and the view of the memory it hands out.
// Every buffer crossing the boundary is allocated and freed through it,
// regardless of which side asked for it.
type Heap interface {
	// Malloc returns a MallocAlignment-aligned buffer of exactly n bytes.
	// Allocation failure is fatal.
	Malloc(n uint32) abi.FatPtr
	// Free releases a buffer previously returned by Malloc. The FatPtr must
	// carry the length it was allocated with.
	Free(fp abi.FatPtr)
	// Bytes returns a view of n bytes at ptr. The view is invalidated by
	// the next Malloc.
	Bytes(ptr, n uint32) []byte
	// Load32 and Store32 access one little-endian word.
	Load32(addr uint32) uint32
	Store32(addr, v uint32)
}

// ArenaStats counts allocator activity.
type ArenaStats struct {
	Mallocs   int
	Frees     int
	Live      int
	LiveBytes uint64
}

// Arena is a Heap backed by a growable byte slice. Addresses are offsets
// into the slice; offset 0 is never handed out so that the zero FatPtr
// stays a sentinel. Freed blocks are reused per size class.
//
// Arena guards the ownership contract: freeing a pointer that is not live,
// or with a length other than the one it was allocated with, panics with a
// protocol violation. Freed blocks are filled with FreedByte and checked
// when handed out again, so a write through a stale pointer panics on the
// next reuse of the block, and a stale AsyncValue read carries an unknown
// status.
type Arena struct {
	mem   []byte
	top   uint32
	live  map[uint32]uint32
	free  map[uint32][]uint32
	stats ArenaStats
}

// NewArena creates an arena with capacity for size bytes. It grows on demand.
func NewArena(size int) *Arena {
	if size < abi.MallocAlignment {
		size = abi.MallocAlignment
	}
	return &Arena{
		mem:  make([]byte, abi.MallocAlignment, size),
		top:  abi.MallocAlignment,
		live: make(map[uint32]uint32),
		free: make(map[uint32][]uint32),
	}
}

// FreedByte fills freed Arena blocks.
const FreedByte = 0xdd

func blockSize(n uint32) uint32 {
	if n == 0 {
		return abi.MallocAlignment
	}
	return (n + abi.MallocAlignment - 1) &^ (abi.MallocAlignment - 1)
}

func (a *Arena) Malloc(n uint32) abi.FatPtr {
	if err := abi.CheckBufferLen(int(n)); err != nil {
		panic(err)
	}
	size := blockSize(n)

	var ptr uint32
	if list := a.free[size]; len(list) > 0 {
		ptr = list[len(list)-1]
		a.free[size] = list[:len(list)-1]
		a.checkPoison(ptr, size)
	} else {
		ptr = a.top
		a.top += size
		if int(a.top) > len(a.mem) {
			a.mem = append(a.mem, make([]byte, int(a.top)-len(a.mem))...)
		}
	}

	a.live[ptr] = n
	a.stats.Mallocs++
	a.stats.Live++
	a.stats.LiveBytes += uint64(n)
	return abi.ToFatPtr(ptr, n)
}

// Free releases fp. Freeing the zero FatPtr is a no-op.
func (a *Arena) Free(fp abi.FatPtr) {
	if fp.IsZero() {
		return
	}
	if err := fp.Validate(); err != nil {
		panic(err)
	}
	ptr, n := abi.FromFatPtr(fp)
	size, ok := a.live[ptr]
	if !ok {
		panic(errors.ProtocolViolation(errors.KindDoubleFree,
			fmt.Sprintf("free of %v which is not allocated", fp)))
	}
	if size != n {
		panic(errors.ProtocolViolation(errors.KindDoubleFree,
			fmt.Sprintf("free of %v but block holds %d bytes", fp, size)))
	}

	delete(a.live, ptr)
	block := blockSize(n)
	fill(a.mem[ptr:ptr+block], FreedByte)
	a.free[block] = append(a.free[block], ptr)
	a.stats.Frees++
	a.stats.Live--
	a.stats.LiveBytes -= uint64(n)
}

func (a *Arena) checkPoison(ptr, size uint32) {
	for i, b := range a.mem[ptr : ptr+size] {
		if b != FreedByte {
			panic(errors.ProtocolViolation(errors.KindUseAfterFree,
				fmt.Sprintf("block 0x%x written at offset %d after free", ptr, i)))
		}
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func (a *Arena) Bytes(ptr, n uint32) []byte {
	end := uint64(ptr) + uint64(n)
	if end > uint64(len(a.mem)) {
		panic(errors.OutOfBounds(errors.PhaseGuest, nil, int(end), len(a.mem)))
	}
	return a.mem[ptr:end:end]
}

func (a *Arena) Load32(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(a.Bytes(addr, 4))
}

func (a *Arena) Store32(addr, v uint32) {
	binary.LittleEndian.PutUint32(a.Bytes(addr, 4), v)
}

// Stats returns the allocator counters.
func (a *Arena) Stats() ArenaStats {
	return a.stats
}

// Size returns the number of bytes of backing memory in use.
func (a *Arena) Size() int {
	return len(a.mem)
}
