package guest

import "github.com/wippyai/fp-bridge/abi"

// Cell is the shared AsyncValue record at a fixed address.
//
// Publish writes ptr and len before status, and Load reads status before
// ptr and len, so a reader that sees StatusReady also sees the payload.
type Cell struct {
	heap Heap
	addr uint32
}

// CellAt returns the cell an AsyncValue FatPtr points to.
func CellAt(h Heap, fp abi.FatPtr) Cell {
	return Cell{heap: h, addr: fp.Ptr()}
}

func (c Cell) Load() abi.AsyncValue {
	status := abi.Status(c.heap.Load32(c.addr + abi.StatusOffset))
	return abi.AsyncValue{
		Status: status,
		Ptr:    c.heap.Load32(c.addr + abi.PtrOffset),
		Len:    c.heap.Load32(c.addr + abi.LenOffset),
	}
}

// Publish marks the cell ready with result as its payload.
func (c Cell) Publish(result abi.FatPtr) {
	c.heap.Store32(c.addr+abi.PtrOffset, result.Ptr())
	c.heap.Store32(c.addr+abi.LenOffset, result.Len())
	c.heap.Store32(c.addr+abi.StatusOffset, uint32(abi.StatusReady))
}

// Reset writes a pending record.
func (c Cell) Reset() {
	c.heap.Store32(c.addr+abi.StatusOffset, uint32(abi.StatusPending))
	c.heap.Store32(c.addr+abi.PtrOffset, 0)
	c.heap.Store32(c.addr+abi.LenOffset, 0)
}
