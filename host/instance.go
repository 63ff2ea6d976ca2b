package host

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	fpbridge "github.com/wippyai/fp-bridge"
	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/schema"
)

var _ fpbridge.Allocator = (*Instance)(nil)

// Instance is an instantiated guest.
//
// Calls into the guest are serialized by the instance mutex. Import
// handlers run while it is held, so a handler must not call methods of its
// own instance.
type Instance struct {
	ctx      context.Context
	module   *Module
	mod      api.Module
	memory   *Memory
	mallocFn api.Function
	freeFn   api.Function
	resolve  api.Function
	wakers   *wakerTable
	inflight *tracker
	log      *zap.Logger
	cancel   context.CancelFunc
	stackBuf []uint64
	mu       sync.Mutex
	closed   bool
}

type instanceKey struct{}

func newInstance(m *Module) *Instance {
	inst := &Instance{
		module:   m,
		wakers:   newWakerTable(),
		inflight: newTracker(),
		log:      m.runtime.log,
		stackBuf: make([]uint64, 2),
	}
	inst.ctx, inst.cancel = context.WithCancel(context.Background())
	return inst
}

// callContext tags ctx with the instance so import functions can find it.
func (i *Instance) callContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, instanceKey{}, i)
}

// instanceFor returns the instance a guest call belongs to.
func (r *Runtime) instanceFor(ctx context.Context, mod api.Module) *Instance {
	inst, ok := ctx.Value(instanceKey{}).(*Instance)
	if !ok {
		panic(errors.NotInitialized(errors.PhaseHost, "instance"))
	}
	inst.attach(mod)
	return inst
}

// attach binds the guest module. Import functions called by start
// functions attach the module before Instantiate returns.
func (i *Instance) attach(mod api.Module) {
	if i.mod != nil {
		return
	}
	i.mod = mod
	i.memory = &Memory{mod: mod}
	i.mallocFn = mod.ExportedFunction(abi.MallocName)
	i.freeFn = mod.ExportedFunction(abi.FreeName)
	i.resolve = mod.ExportedFunction(abi.GuestResolveName)
}

func (i *Instance) checkABI(needResolve bool) error {
	if i.mod.Memory() == nil {
		return errors.NotFound(errors.PhaseRuntime, "memory", "guest memory export")
	}
	if i.mallocFn == nil {
		return errors.FunctionNotExported(abi.MallocName)
	}
	if i.freeFn == nil {
		return errors.FunctionNotExported(abi.FreeName)
	}
	if needResolve && i.resolve == nil {
		return errors.FunctionNotExported(abi.GuestResolveName)
	}
	return nil
}

// Memory returns the view of the guest memory.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module {
	return i.module
}

// guarded runs f under the instance mutex.
func (i *Instance) guarded(ctx context.Context, f func(ctx context.Context) error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return errors.Closed("instance")
	}
	return f(i.callContext(ctx))
}

// Close cancels the contexts of running async import handlers, waits for
// them to resolve and releases the guest.
func (i *Instance) Close(ctx context.Context) error {
	i.cancel()
	if err := i.inflight.wait(ctx); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if n := i.wakers.len(); n > 0 {
		debugf("closing instance with %d pending wakers", n)
	}
	mod := i.mod
	i.mod = nil
	i.mallocFn, i.freeFn, i.resolve = nil, nil, nil
	return mod.Close(ctx)
}

// Wait blocks until every async import started so far has been resolved
// into the guest.
func (i *Instance) Wait(ctx context.Context) error {
	return i.inflight.wait(ctx)
}

// Malloc allocates n bytes through the guest's __fp_malloc.
func (i *Instance) Malloc(ctx context.Context, n uint32) (abi.FatPtr, error) {
	var fp abi.FatPtr
	err := i.guarded(ctx, func(ctx context.Context) error {
		var err error
		fp, err = i.malloc(ctx, n)
		return err
	})
	return fp, err
}

// Free releases a guest buffer through the guest's __fp_free. Freeing the
// zero FatPtr does nothing.
func (i *Instance) Free(ctx context.Context, fp abi.FatPtr) error {
	return i.guarded(ctx, func(ctx context.Context) error {
		return i.free(ctx, fp)
	})
}

func (i *Instance) malloc(ctx context.Context, n uint32) (abi.FatPtr, error) {
	if err := abi.CheckBufferLen(int(n)); err != nil {
		return 0, err
	}
	i.stackBuf[0] = uint64(n)
	if err := i.mallocFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, n, err)
	}
	fp := abi.FatPtr(i.stackBuf[0])
	if err := fp.Validate(); err != nil {
		return 0, err
	}
	if fp.Len() != n {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, n,
			fmt.Errorf("guest returned %s for %d bytes", fp, n))
	}
	return fp, nil
}

func (i *Instance) free(ctx context.Context, fp abi.FatPtr) error {
	if fp.IsZero() {
		return nil
	}
	if err := fp.Validate(); err != nil {
		return err
	}
	i.stackBuf[0] = uint64(fp)
	if err := i.freeFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
		return errors.GuestTrap(abi.FreeName, err)
	}
	return nil
}

// Invoke calls a guest export with raw core values, bypassing the
// protocol.
func (i *Instance) Invoke(ctx context.Context, export string, raw ...uint64) ([]uint64, error) {
	var out []uint64
	err := i.guarded(ctx, func(ctx context.Context) error {
		fn := i.mod.ExportedFunction(export)
		if fn == nil {
			return errors.FunctionNotExported(export)
		}
		res, err := fn.Call(ctx, raw...)
		if err != nil {
			return errors.GuestTrap(export, err)
		}
		out = res
		return nil
	})
	return out, err
}

// Call invokes the protocol export name and returns its result: the Go
// value of a primitive, a generic decoded value (maps, slices, strings,
// numbers) otherwise, and nil for functions without result.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	var out any
	err := i.call(ctx, name, false, args, func(ctx context.Context, fn *schema.Function, ret uint64) error {
		if k := schema.PrimitiveKind(fn.Result); k != abi.KindInvalid {
			out = abi.DecodePrimitive(k, ret)
			return nil
		}
		if abi.FatPtr(ret).IsZero() {
			return errors.EmptyResult(errors.PhaseDecode, schema.TypeString(fn.Result))
		}
		return i.importValue(ctx, abi.FatPtr(ret), &out)
	})
	return out, err
}

// CallInto invokes the protocol export name and decodes its result into
// out, which must be a pointer.
func (i *Instance) CallInto(ctx context.Context, name string, out any, args ...any) error {
	return i.call(ctx, name, false, args, func(ctx context.Context, fn *schema.Function, ret uint64) error {
		if k := schema.PrimitiveKind(fn.Result); k != abi.KindInvalid {
			return setPrimitive(k, ret, out)
		}
		return i.importValue(ctx, abi.FatPtr(ret), out)
	})
}

// CallRaw invokes the protocol export name and returns the serialized
// result without decoding it. Primitive results are serialized.
func (i *Instance) CallRaw(ctx context.Context, name string, args ...any) ([]byte, error) {
	var out []byte
	err := i.call(ctx, name, false, args, func(ctx context.Context, fn *schema.Function, ret uint64) error {
		var err error
		if k := schema.PrimitiveKind(fn.Result); k != abi.KindInvalid {
			out, err = codec.Serialize(abi.DecodePrimitive(k, ret))
			return err
		}
		out, err = i.importRaw(ctx, abi.FatPtr(ret))
		return err
	})
	return out, err
}

// CallAsync invokes the async protocol export name and returns a future
// for its result.
func (i *Instance) CallAsync(ctx context.Context, name string, args ...any) (*ModuleFuture, error) {
	var fut *ModuleFuture
	err := i.call(ctx, name, true, args, func(_ context.Context, _ *schema.Function, ret uint64) error {
		ptr := abi.FatPtr(ret)
		if err := ptr.Validate(); err != nil {
			return err
		}
		if ptr.IsZero() || ptr.Len() != abi.AsyncValueSize {
			return errors.ProtocolViolation(errors.KindInvalidFatPtr,
				fmt.Sprintf("%s returned %s, want an async value record", name, ptr))
		}
		fut = &ModuleFuture{inst: i, ptr: ptr}
		return nil
	})
	return fut, err
}

// call checks the export against the protocol, lowers args, calls the
// guest and hands the raw result to lift, all under the instance mutex.
func (i *Instance) call(ctx context.Context, name string, async bool, args []any,
	lift func(ctx context.Context, fn *schema.Function, ret uint64) error,
) error {
	fn, ok := i.module.protocol.Export(name)
	if !ok {
		return errors.FunctionNotExported(name)
	}
	if fn.Async != async {
		return errors.UnexpectedReturnType(name, fmt.Sprintf("function is declared with async=%v", fn.Async))
	}

	return i.guarded(ctx, func(ctx context.Context) error {
		gf := i.mod.ExportedFunction(fn.Symbol())
		if gf == nil {
			return errors.FunctionNotExported(name)
		}
		if err := checkSignature(fn, gf.Definition()); err != nil {
			return err
		}

		raw, err := i.lowerArgs(ctx, fn, args)
		if err != nil {
			return err
		}
		debugf("call %s%v", fn.Symbol(), raw)
		res, err := gf.Call(ctx, raw...)
		if err != nil {
			return errors.GuestTrap(fn.Symbol(), err)
		}
		if fn.Result == nil && !fn.Async {
			return nil
		}
		return lift(ctx, fn, res[0])
	})
}

func checkSignature(fn *schema.Function, def api.FunctionDefinition) error {
	want := valueTypes(fn.WasmResults())
	if got := def.ResultTypes(); !sameTypes(got, want) {
		return errors.UnexpectedReturnType(fn.Name,
			fmt.Sprintf("guest returns %s, protocol declares %s", typeList(got), typeList(want)))
	}
	want = valueTypes(fn.WasmParams())
	if got := def.ParamTypes(); !sameTypes(got, want) {
		return errors.UnexpectedReturnType(fn.Name,
			fmt.Sprintf("guest takes %s, protocol declares %s", typeList(got), typeList(want)))
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeList(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return fmt.Sprint(names)
}

func (i *Instance) lowerArgs(ctx context.Context, fn *schema.Function, args []any) ([]uint64, error) {
	if len(args) != len(fn.Params) {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args)))
	}

	raw := make([]uint64, len(args))
	for n, p := range fn.Params {
		var err error
		if k := schema.PrimitiveKind(p.Type); k != abi.KindInvalid {
			raw[n], err = abi.EncodePrimitive(k, args[n])
		} else {
			var fp abi.FatPtr
			fp, err = i.exportValue(ctx, args[n])
			raw[n] = uint64(fp)
		}
		if err != nil {
			i.releaseArgs(ctx, fn, raw[:n], 0)
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err,
				fmt.Sprintf("%s: argument %s", fn.Name, p.Name))
		}
	}
	return raw, nil
}

// releaseArgs frees the guest buffers of marshalled arguments in raw,
// which start at parameter offset.
func (i *Instance) releaseArgs(ctx context.Context, fn *schema.Function, raw []uint64, offset int) {
	for n, r := range raw {
		if schema.IsPrimitive(fn.Params[offset+n].Type) || r == 0 {
			continue
		}
		if err := i.free(ctx, abi.FatPtr(r)); err != nil {
			i.log.Warn("release argument", zap.String("function", fn.Name), zap.Error(err))
		}
	}
}

func setPrimitive(k abi.Kind, raw uint64, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("output must be a non-nil pointer, got %T", out))
	}
	t := rv.Elem().Type()
	if !schema.AcceptsPrimitive(k, t) {
		return errors.TypeMismatch(errors.PhaseDecode, nil, t.String(), k.String())
	}
	rv.Elem().Set(schema.LiftPrimitive(k, raw, t))
	return nil
}
