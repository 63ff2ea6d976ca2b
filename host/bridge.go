package host

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/schema"
)

// importFunc adapts a registered handler to the core signature of its
// generated import. Failures trap the calling guest.
func (r *Runtime) importFunc(b *importBinding) api.GoModuleFunc {
	nparams := len(b.fn.Params)
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		inst := r.instanceFor(ctx, mod)
		args, err := inst.liftArgs(ctx, b.h, stack[:nparams])
		if err != nil {
			panic(err)
		}

		if b.fn.Async {
			stack[0] = uint64(inst.startAsyncImport(ctx, b, args))
			return
		}

		out, err := callHandler(ctx, b.h, args)
		if err != nil {
			panic(errors.Wrap(errors.PhaseHost, errors.KindGuestTrap, err, "import "+b.fn.Name))
		}
		if b.fn.Result == nil {
			return
		}
		ret, err := inst.lowerResult(ctx, b.fn, out)
		if err != nil {
			panic(err)
		}
		stack[0] = ret
	}
}

// callHandler calls h with ctx as its optional leading argument. A panic
// in the handler is returned as an error.
func callHandler(ctx context.Context, h *schema.Handler, args []reflect.Value) (out reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Fn.Name, p)
		}
	}()
	return h.Call([]reflect.Value{reflect.ValueOf(ctx)}, args)
}

func (i *Instance) liftArgs(ctx context.Context, h *schema.Handler, raw []uint64) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(raw))
	for n, p := range h.Fn.Params {
		if schema.IsPrimitive(p.Type) {
			args[n] = h.LiftPrimitive(n, raw[n])
			continue
		}
		data, err := i.importRaw(ctx, abi.FatPtr(raw[n]))
		if err == nil {
			args[n], err = h.DecodeParam(n, data)
		}
		if err != nil {
			i.releaseArgs(ctx, h.Fn, raw[n+1:], n+1)
			return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err,
				fmt.Sprintf("%s: argument %s", h.Fn.Name, p.Name))
		}
	}
	return args, nil
}

func (i *Instance) lowerResult(ctx context.Context, fn *schema.Function, out reflect.Value) (uint64, error) {
	if !out.IsValid() {
		return 0, nil
	}
	if k := schema.PrimitiveKind(fn.Result); k != abi.KindInvalid {
		return abi.EncodePrimitive(k, out.Interface())
	}
	fp, err := i.exportValue(ctx, out.Interface())
	return uint64(fp), err
}

// startAsyncImport returns a pending AsyncValue to the guest and runs the
// handler on its own goroutine.
func (i *Instance) startAsyncImport(ctx context.Context, b *importBinding, args []reflect.Value) abi.FatPtr {
	asyncPtr, err := i.createAsyncValue(ctx)
	if err != nil {
		panic(err)
	}
	i.inflight.add()
	go i.runAsyncImport(b, asyncPtr, args)
	return asyncPtr
}

// runAsyncImport resolves asyncPtr with the handler's result. Handler
// failures are logged and resolve with the zero FatPtr.
func (i *Instance) runAsyncImport(b *importBinding, asyncPtr abi.FatPtr, args []reflect.Value) {
	defer i.inflight.done()

	out, herr := callHandler(i.ctx, b.h, args)

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		debugf("async import %s finished after close", b.fn.Name)
		return
	}
	ctx := i.callContext(i.ctx)

	var result abi.FatPtr
	switch {
	case herr != nil:
		i.log.Error("async import failed", zap.String("function", b.fn.Name), zap.Error(herr))
	case out.IsValid() && !codec.IsUnit(out.Type()):
		fp, err := i.exportValue(ctx, out.Interface())
		if err != nil {
			i.log.Error("export async import result", zap.String("function", b.fn.Name), zap.Error(err))
		} else {
			result = fp
		}
	}

	if err := i.guestResolve(ctx, asyncPtr, result); err != nil {
		i.log.Error("resolve async import", zap.String("function", b.fn.Name),
			zap.Stringer("async_value", asyncPtr), zap.Error(err))
	}
}
