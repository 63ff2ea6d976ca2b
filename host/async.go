package host

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
)

// Waker is called once when the AsyncValue it was registered for is
// resolved. It runs under the instance mutex and must not block.
type Waker func()

type wakerTable struct {
	m  map[abi.FatPtr]Waker
	mu sync.Mutex
}

func newWakerTable() *wakerTable {
	return &wakerTable{m: make(map[abi.FatPtr]Waker)}
}

func (t *wakerTable) insert(ptr abi.FatPtr, w Waker) {
	t.mu.Lock()
	t.m[ptr] = w
	t.mu.Unlock()
}

// take removes and returns the waker of ptr.
func (t *wakerTable) take(ptr abi.FatPtr) (Waker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.m[ptr]
	if ok {
		delete(t.m, ptr)
	}
	return w, ok
}

func (t *wakerTable) remove(ptr abi.FatPtr) {
	t.mu.Lock()
	delete(t.m, ptr)
	t.mu.Unlock()
}

func (t *wakerTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// CreateAsyncValue allocates a pending AsyncValue record in the guest.
func (i *Instance) CreateAsyncValue(ctx context.Context) (abi.FatPtr, error) {
	var fp abi.FatPtr
	err := i.guarded(ctx, func(ctx context.Context) error {
		var err error
		fp, err = i.createAsyncValue(ctx)
		return err
	})
	return fp, err
}

// ReadAsyncValue reads the record at fp.
func (i *Instance) ReadAsyncValue(fp abi.FatPtr) (abi.AsyncValue, error) {
	var v abi.AsyncValue
	err := i.guarded(context.Background(), func(context.Context) error {
		var err error
		v, err = i.readAsyncValue(fp)
		return err
	})
	return v, err
}

// PendingWakers returns the number of futures waiting for a resolution.
func (i *Instance) PendingWakers() int {
	return i.wakers.len()
}

func (i *Instance) createAsyncValue(ctx context.Context) (abi.FatPtr, error) {
	fp, err := i.malloc(ctx, abi.AsyncValueSize)
	if err != nil {
		return 0, err
	}
	if err := i.memory.Write(fp.Ptr(), abi.AsyncValue{}.Bytes()); err != nil {
		_ = i.free(ctx, fp)
		return 0, err
	}
	return fp, nil
}

func (i *Instance) readAsyncValue(fp abi.FatPtr) (abi.AsyncValue, error) {
	if err := fp.Validate(); err != nil {
		return abi.AsyncValue{}, err
	}
	data, err := i.memory.View(fp.Ptr(), abi.AsyncValueSize)
	if err != nil {
		return abi.AsyncValue{}, err
	}
	return abi.DecodeAsyncValue(data)
}

// hostResolve implements __fp_host_resolve_async_value: the guest resolves
// a value the host awaits.
func (r *Runtime) hostResolve(ctx context.Context, mod api.Module, stack []uint64) {
	inst := r.instanceFor(ctx, mod)
	inst.resolveAsyncValue(abi.FatPtr(stack[0]), abi.FatPtr(stack[1]))
}

// resolveAsyncValue publishes result into the record at asyncPtr, pointer
// and length before the status, then fires the waker. A record resolved
// twice keeps the last result; nobody is woken the second time.
func (i *Instance) resolveAsyncValue(asyncPtr, result abi.FatPtr) {
	if err := asyncPtr.Validate(); err != nil {
		panic(err)
	}
	p := asyncPtr.Ptr()
	if err := i.memory.WriteU32(p+abi.PtrOffset, result.Ptr()); err != nil {
		panic(err)
	}
	if err := i.memory.WriteU32(p+abi.LenOffset, result.Len()); err != nil {
		panic(err)
	}
	if err := i.memory.WriteU32(p+abi.StatusOffset, uint32(abi.StatusReady)); err != nil {
		panic(err)
	}

	if w, ok := i.wakers.take(asyncPtr); ok {
		w()
		return
	}
	debugf("resolve %s: no waker registered", asyncPtr)
}

// guestResolve calls __fp_guest_resolve_async_value.
func (i *Instance) guestResolve(ctx context.Context, asyncPtr, result abi.FatPtr) error {
	if i.resolve == nil {
		return errors.FunctionNotExported(abi.GuestResolveName)
	}
	i.stackBuf[0], i.stackBuf[1] = uint64(asyncPtr), uint64(result)
	if err := i.resolve.CallWithStack(ctx, i.stackBuf[:2]); err != nil {
		return errors.GuestTrap(abi.GuestResolveName, err)
	}
	return nil
}

// ModuleFuture is the result of an async guest export. The guest resolves
// it by calling __fp_host_resolve_async_value during any later call into
// the instance.
type ModuleFuture struct {
	err  error
	inst *Instance
	out  []byte
	ptr  abi.FatPtr
	done bool
}

// Ptr returns the FatPtr of the AsyncValue record.
func (f *ModuleFuture) Ptr() abi.FatPtr {
	return f.ptr
}

// Poll checks the record. While it is pending, waker is registered and
// called once the guest resolves it. Once ready, the payload is copied out
// and both the payload and the record are freed. An unknown status panics.
func (f *ModuleFuture) Poll(ctx context.Context, waker Waker) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
	)
	err := f.inst.guarded(ctx, func(ctx context.Context) error {
		var err error
		data, ok, err = f.poll(ctx, waker)
		return err
	})
	return data, ok, err
}

func (f *ModuleFuture) poll(ctx context.Context, waker Waker) ([]byte, bool, error) {
	if f.done {
		return f.out, true, f.err
	}

	v, err := f.inst.readAsyncValue(f.ptr)
	if err != nil {
		return nil, false, err
	}
	if err := v.Check(); err != nil {
		panic(err)
	}
	if v.Status == abi.StatusPending {
		if waker != nil {
			f.inst.wakers.insert(f.ptr, waker)
		}
		return nil, false, nil
	}

	f.out, f.err = f.inst.importRaw(ctx, v.Result())
	if err := f.inst.free(ctx, f.ptr); err != nil && f.err == nil {
		f.err = err
	}
	f.done = true
	return f.out, true, f.err
}

// Await polls until the guest resolves the value or ctx is done. Nil data
// means the guest resolved with the zero FatPtr.
func (f *ModuleFuture) Await(ctx context.Context) ([]byte, error) {
	for {
		woken := make(chan struct{}, 1)
		data, ok, err := f.Poll(ctx, func() {
			select {
			case woken <- struct{}{}:
			default:
			}
		})
		if err != nil || ok {
			return data, err
		}
		select {
		case <-woken:
		case <-ctx.Done():
			f.inst.wakers.remove(f.ptr)
			return nil, ctx.Err()
		}
	}
}

// AwaitInto awaits the value and decodes it into out.
func (f *ModuleFuture) AwaitInto(ctx context.Context, out any) error {
	data, err := f.Await(ctx)
	if err != nil {
		return err
	}
	return decodeInto(data, out)
}

// AwaitValue awaits a future and decodes its result as T.
func AwaitValue[T any](ctx context.Context, f *ModuleFuture) (T, error) {
	var out T
	if err := f.AwaitInto(ctx, &out); err != nil {
		return out, err
	}
	return out, nil
}
