package guest

import (
	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
)

// HostLink is the guest's view of the host's resolution entry point.
type HostLink interface {
	// ResolveAsyncValue completes an AsyncValue the host is waiting on.
	ResolveAsyncValue(asyncPtr, resultPtr abi.FatPtr)
}

// Runtime is the guest-side scheduler context: the heap, the link back to
// the host, the waker table, the task queue and the function tables.
//
// A Runtime is not safe for concurrent use. Every boundary entry point runs
// on the single guest thread.
type Runtime struct {
	heap    Heap
	link    HostLink
	wakers  map[abi.FatPtr]Waker
	queue   Queue
	exports map[string]*export
	imports map[string]*hostImport
	log     *zap.Logger
}

// New creates a runtime allocating from heap and resolving through link.
func New(heap Heap, link HostLink) *Runtime {
	return &Runtime{
		heap:    heap,
		link:    link,
		wakers:  make(map[abi.FatPtr]Waker),
		exports: make(map[string]*export),
		imports: make(map[string]*hostImport),
		log:     Logger(),
	}
}

// SetLogger overrides the package logger for this runtime.
func (rt *Runtime) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	rt.log = l
}

func (rt *Runtime) Heap() Heap { return rt.heap }

// Queue returns the runtime's task queue.
func (rt *Runtime) Queue() *Queue { return &rt.queue }

// PendingWakers returns the number of registered wakers.
func (rt *Runtime) PendingWakers() int { return len(rt.wakers) }

// ResolveAsyncValue is the guest resolution entry point. It publishes
// resultPtr into the AsyncValue at asyncPtr and then fires the waker
// registered for it, which drains the task queue before returning.
// A missing waker is not an error: the future may have been dropped.
func (rt *Runtime) ResolveAsyncValue(asyncPtr, resultPtr abi.FatPtr) {
	CellAt(rt.heap, asyncPtr).Publish(resultPtr)

	w, ok := rt.wakers[asyncPtr]
	if !ok {
		debugf("resolve %v: no waker registered", asyncPtr)
		return
	}
	delete(rt.wakers, asyncPtr)
	w.Wake()
}

// HostFuture waits for the host to resolve an AsyncValue. It completes with
// the payload FatPtr; importing the payload is up to the caller.
type HostFuture struct {
	rt   *Runtime
	ptr  abi.FatPtr
	out  abi.FatPtr
	done bool
}

// HostFuture returns a future over the AsyncValue at asyncPtr. At most one
// future may be created per AsyncValue.
func (rt *Runtime) HostFuture(asyncPtr abi.FatPtr) *HostFuture {
	return &HostFuture{rt: rt, ptr: asyncPtr}
}

// Poll reads the record. Pending registers the waker; ready releases the
// record and returns the payload. Any other status is a protocol violation.
func (f *HostFuture) Poll(cx *Context) (abi.FatPtr, bool) {
	if f.done {
		return f.out, true
	}
	v := CellAt(f.rt.heap, f.ptr).Load()
	if err := v.Check(); err != nil {
		panic(err)
	}
	if v.Status == abi.StatusPending {
		f.rt.wakers[f.ptr] = cx.Waker()
		return 0, false
	}

	f.out = v.Result()
	f.done = true
	f.rt.heap.Free(f.ptr)
	return f.out, true
}

// ImportFuture waits for the host to resolve asyncPtr and imports the
// payload as a T.
func ImportFuture[T any](rt *Runtime, asyncPtr abi.FatPtr) Future[Result[T]] {
	return Map[abi.FatPtr](rt.HostFuture(asyncPtr), func(fp abi.FatPtr) Result[T] {
		v, err := ImportValue[T](rt, fp)
		return Result[T]{Value: v, Err: err}
	})
}

// AllocAndSpawn allocates a pending AsyncValue, spawns a task that awaits f,
// exports its value and hands it to the host, and returns the AsyncValue
// FatPtr. Unit results resolve with the zero FatPtr.
func AllocAndSpawn[T any](rt *Runtime, f Future[T]) abi.FatPtr {
	return rt.spawnResolved(Map(f, func(v T) abi.FatPtr {
		if isUnitValue(v) {
			return 0
		}
		fp, err := ExportValue(rt, v)
		if err != nil {
			rt.log.Error("export async result", zap.Error(err))
			return 0
		}
		return fp
	}))
}

func (rt *Runtime) spawnResolved(f Future[abi.FatPtr]) abi.FatPtr {
	asyncPtr := rt.heap.Malloc(abi.AsyncValueSize)
	CellAt(rt.heap, asyncPtr).Reset()

	rt.Spawn(Map(f, func(result abi.FatPtr) codec.Unit {
		rt.link.ResolveAsyncValue(asyncPtr, result)
		return codec.Unit{}
	}))
	return asyncPtr
}
