package guest

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
)

// fakeHost plays the host's resolution entry point: it publishes into the
// record and remembers the call.
type fakeHost struct {
	heap     Heap
	resolved []resolution
}

type resolution struct {
	asyncPtr, resultPtr abi.FatPtr
}

func (h *fakeHost) ResolveAsyncValue(asyncPtr, resultPtr abi.FatPtr) {
	CellAt(h.heap, asyncPtr).Publish(resultPtr)
	h.resolved = append(h.resolved, resolution{asyncPtr, resultPtr})
}

func newTestRuntime() (*Runtime, *Arena, *fakeHost) {
	arena := NewArena(1 << 12)
	host := &fakeHost{heap: arena}
	return New(arena, host), arena, host
}

// pendingImport emulates an async host function: it creates a pending
// AsyncValue and records it for the test to resolve.
func pendingImport(rt *Runtime, calls *[]abi.FatPtr) RawImport {
	return func(args ...uint64) uint64 {
		fp := rt.Heap().Malloc(abi.AsyncValueSize)
		CellAt(rt.Heap(), fp).Reset()
		*calls = append(*calls, fp)
		return uint64(fp)
	}
}

// manualFuture completes when the test says so.
type manualFuture[T any] struct {
	v     T
	ready bool
	waker Waker
	polls int
}

func (f *manualFuture[T]) Poll(cx *Context) (T, bool) {
	f.polls++
	if f.ready {
		return f.v, true
	}
	f.waker = cx.Waker()
	var zero T
	return zero, false
}

func (f *manualFuture[T]) complete(v T) {
	f.v, f.ready = v, true
	if w := f.waker; w != nil {
		f.waker = nil
		w.Wake()
	}
}

func expectProtocolViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); !errors.IsProtocolViolation(r) {
			t.Fatalf("recovered %v, want protocol violation", r)
		}
	}()
	fn()
}

func errorsAs(err error, target **errors.Error) bool {
	return stderrors.As(err, target)
}
