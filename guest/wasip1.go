//go:build wasip1

package guest

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
)

// linearHeap hands out Go allocations as linear-memory addresses. Live
// blocks are pinned in a map so the collector keeps them.
type linearHeap struct {
	blocks map[uint32]block
}

type block struct {
	buf []byte
	n   uint32
}

func (h *linearHeap) Malloc(n uint32) abi.FatPtr {
	if err := abi.CheckBufferLen(int(n)); err != nil {
		panic(err)
	}
	buf := make([]byte, int(n)+abi.MallocAlignment)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	ptr := uint32((base + abi.MallocAlignment - 1) &^ (abi.MallocAlignment - 1))
	h.blocks[ptr] = block{buf: buf, n: n}
	return abi.ToFatPtr(ptr, n)
}

func (h *linearHeap) Free(fp abi.FatPtr) {
	if fp.IsZero() {
		return
	}
	if err := fp.Validate(); err != nil {
		panic(err)
	}
	ptr, n := abi.FromFatPtr(fp)
	b, ok := h.blocks[ptr]
	if !ok || b.n != n {
		panic(errors.ProtocolViolation(errors.KindDoubleFree,
			fmt.Sprintf("free of %v which is not allocated", fp)))
	}
	delete(h.blocks, ptr)
}

func (h *linearHeap) Bytes(ptr, n uint32) []byte {
	//nolint:gosec // linear memory address
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n)
}

func (h *linearHeap) Load32(addr uint32) uint32 {
	//nolint:gosec // linear memory address
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(uintptr(addr))))
}

func (h *linearHeap) Store32(addr, v uint32) {
	//nolint:gosec // linear memory address
	atomic.StoreUint32((*uint32)(unsafe.Pointer(uintptr(addr))), v)
}

//go:wasmimport fp __fp_host_resolve_async_value
func hostResolveAsyncValue(asyncPtr, resultPtr uint64)

type wasmHost struct{}

func (wasmHost) ResolveAsyncValue(asyncPtr, resultPtr abi.FatPtr) {
	hostResolveAsyncValue(uint64(asyncPtr), uint64(resultPtr))
}

var defaultRuntime = New(&linearHeap{blocks: make(map[uint32]block)}, wasmHost{})

// Default returns the runtime bound to this module's exports and imports.
//
// A guest registers its functions on it and exports one wrapper per
// protocol function:
//
//	//go:wasmexport __fp_gen_add
//	func add(a, b uint32) uint32 {
//	    return uint32(guest.MustInvoke("add", uint64(a), uint64(b)))
//	}
func Default() *Runtime {
	return defaultRuntime
}

// MustInvoke calls Default().Invoke and traps on error.
func MustInvoke(name string, raw ...uint64) uint64 {
	ret, err := defaultRuntime.Invoke(name, raw...)
	if err != nil {
		panic(err)
	}
	return ret
}

//go:wasmexport __fp_malloc
func fpMalloc(n uint32) uint64 {
	return uint64(defaultRuntime.heap.Malloc(n))
}

//go:wasmexport __fp_free
func fpFree(fp uint64) {
	defaultRuntime.heap.Free(abi.FatPtr(fp))
}

//go:wasmexport __fp_guest_resolve_async_value
func fpGuestResolveAsyncValue(asyncPtr, resultPtr uint64) {
	defaultRuntime.ResolveAsyncValue(abi.FatPtr(asyncPtr), abi.FatPtr(resultPtr))
}
