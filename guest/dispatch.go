package guest

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/schema"
)

var awaiterType = reflect.TypeFor[*Awaiter]()

type export struct {
	h *schema.Handler
}

// RawImport calls a host function with lowered arguments and returns its
// lowered result. Functions without a result return 0.
type RawImport func(args ...uint64) uint64

type hostImport struct {
	fn  *schema.Function
	raw RawImport
}

// Export registers handler as the implementation of fn. Sync handlers take
// the protocol parameters; async handlers take an *Awaiter first.
func (rt *Runtime) Export(fn *schema.Function, handler any) error {
	h, err := schema.BindHandler(fn, handler, awaiterType)
	if err != nil {
		return errors.Registration(errors.PhaseGuest, abi.ImportModule, fn.Name, err)
	}
	if fn.Async && h.Lead == 0 {
		return errors.Registration(errors.PhaseGuest, abi.ImportModule, fn.Name,
			fmt.Errorf("async handler must take *guest.Awaiter as first argument"))
	}
	if !fn.Async && h.Lead == 1 {
		return errors.Registration(errors.PhaseGuest, abi.ImportModule, fn.Name,
			fmt.Errorf("sync handler cannot await"))
	}
	if _, dup := rt.exports[fn.Name]; dup {
		return errors.Registration(errors.PhaseGuest, abi.ImportModule, fn.Name,
			fmt.Errorf("already exported"))
	}
	rt.exports[fn.Name] = &export{h: h}
	return nil
}

// ExportProtocol registers one handler per export of p.
func (rt *Runtime) ExportProtocol(p *schema.Protocol, handlers map[string]any) error {
	for _, name := range p.ExportNames() {
		handler, ok := handlers[name]
		if !ok {
			return errors.NotFound(errors.PhaseGuest, "handler", name)
		}
		fn, _ := p.Export(name)
		if err := rt.Export(fn, handler); err != nil {
			return err
		}
	}
	return nil
}

// Invoke runs the boundary wrapper of export name: lift the raw arguments,
// call the handler and lower its result. Async exports return the FatPtr of
// a pending AsyncValue and resolve it through the host link once the
// handler completes.
func (rt *Runtime) Invoke(name string, raw ...uint64) (uint64, error) {
	e, ok := rt.exports[name]
	if !ok {
		return 0, errors.FunctionNotExported(name)
	}
	args, err := rt.liftArgs(e.h, raw)
	if err != nil {
		return 0, err
	}

	if !e.h.Fn.Async {
		out, err := e.h.Call(nil, args)
		if err != nil {
			return 0, err
		}
		return rt.lowerResult(e.h.Fn, out)
	}

	debugf("invoke %s: spawning task", name)
	fut := Async(func(aw *Awaiter) abi.FatPtr {
		out, err := e.h.Call([]reflect.Value{reflect.ValueOf(aw)}, args)
		if err != nil {
			rt.log.Error("async export failed", zap.String("function", name), zap.Error(err))
			return 0
		}
		if !out.IsValid() || isUnitValue(out.Interface()) {
			return 0
		}
		fp, err := ExportValue(rt, out.Interface())
		if err != nil {
			rt.log.Error("export async result", zap.String("function", name), zap.Error(err))
			return 0
		}
		return fp
	})
	return uint64(rt.spawnResolved(fut)), nil
}

func (rt *Runtime) liftArgs(h *schema.Handler, raw []uint64) ([]reflect.Value, error) {
	if len(raw) != len(h.Fn.Params) {
		return nil, errors.InvalidInput(errors.PhaseGuest,
			fmt.Sprintf("%s takes %d arguments, got %d", h.Fn.Name, len(h.Fn.Params), len(raw)))
	}

	args := make([]reflect.Value, len(raw))
	for i, p := range h.Fn.Params {
		if schema.IsPrimitive(p.Type) {
			args[i] = h.LiftPrimitive(i, raw[i])
			continue
		}
		data, err := ImportRaw(rt, abi.FatPtr(raw[i]))
		if err == nil {
			args[i], err = h.DecodeParam(i, data)
		}
		if err != nil {
			rt.releaseArgs(h.Fn, raw[i+1:], i+1)
			return nil, errors.Wrap(errors.PhaseGuest, errors.KindInvalidData, err,
				fmt.Sprintf("%s: argument %s", h.Fn.Name, p.Name))
		}
	}
	return args, nil
}

// releaseArgs frees buffers of arguments that will not be imported.
func (rt *Runtime) releaseArgs(fn *schema.Function, raw []uint64, offset int) {
	for j, r := range raw {
		if !schema.IsPrimitive(fn.Params[offset+j].Type) && r != 0 {
			rt.heap.Free(abi.FatPtr(r))
		}
	}
}

func (rt *Runtime) lowerResult(fn *schema.Function, out reflect.Value) (uint64, error) {
	if fn.Result == nil || !out.IsValid() {
		return 0, nil
	}
	if k := schema.PrimitiveKind(fn.Result); k != abi.KindInvalid {
		return abi.EncodePrimitive(k, out.Interface())
	}
	fp, err := ExportValue(rt, out.Interface())
	return uint64(fp), err
}

// Import registers the raw binding of a host function.
func (rt *Runtime) Import(fn *schema.Function, raw RawImport) error {
	if raw == nil {
		return errors.InvalidInput(errors.PhaseGuest, "nil import binding for "+fn.Name)
	}
	if _, dup := rt.imports[fn.Name]; dup {
		return errors.Registration(errors.PhaseGuest, abi.ImportModule, fn.Name,
			fmt.Errorf("already imported"))
	}
	rt.imports[fn.Name] = &hostImport{fn: fn, raw: raw}
	return nil
}

func (rt *Runtime) lookupImport(name string, async bool) (*hostImport, error) {
	imp, ok := rt.imports[name]
	if !ok {
		return nil, errors.FunctionNotExported(name)
	}
	if imp.fn.Async != async {
		return nil, errors.UnexpectedReturnType(name,
			fmt.Sprintf("function is declared with async=%v", imp.fn.Async))
	}
	return imp, nil
}

// lowerArgs exports every argument. On failure the buffers exported so far
// are freed.
func (rt *Runtime) lowerArgs(fn *schema.Function, args []any) ([]uint64, error) {
	if len(args) != len(fn.Params) {
		return nil, errors.InvalidInput(errors.PhaseGuest,
			fmt.Sprintf("%s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args)))
	}

	raw := make([]uint64, len(args))
	for i, p := range fn.Params {
		var err error
		if k := schema.PrimitiveKind(p.Type); k != abi.KindInvalid {
			raw[i], err = abi.EncodePrimitive(k, args[i])
		} else {
			var fp abi.FatPtr
			fp, err = ExportValue(rt, args[i])
			raw[i] = uint64(fp)
		}
		if err != nil {
			rt.releaseArgs(fn, raw[:i], 0)
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err,
				fmt.Sprintf("%s: argument %s", fn.Name, p.Name))
		}
	}
	return raw, nil
}

// CallImport calls the sync host function name and decodes its result.
func CallImport[T any](rt *Runtime, name string, args ...any) (T, error) {
	var out T
	imp, err := rt.lookupImport(name, false)
	if err != nil {
		return out, err
	}
	raw, err := rt.lowerArgs(imp.fn, args)
	if err != nil {
		return out, err
	}
	ret := imp.raw(raw...)

	if imp.fn.Result == nil {
		return out, nil
	}
	if k := schema.PrimitiveKind(imp.fn.Result); k != abi.KindInvalid {
		t := reflect.TypeFor[T]()
		if !schema.AcceptsPrimitive(k, t) {
			return out, errors.TypeMismatch(errors.PhaseDecode, nil, t.String(), k.String())
		}
		reflect.ValueOf(&out).Elem().Set(schema.LiftPrimitive(k, ret, t))
		return out, nil
	}
	return ImportValue[T](rt, abi.FatPtr(ret))
}

// CallImportAsync calls the async host function name and returns a future
// for its decoded result.
func CallImportAsync[T any](rt *Runtime, name string, args ...any) (Future[Result[T]], error) {
	imp, err := rt.lookupImport(name, true)
	if err != nil {
		return nil, err
	}
	raw, err := rt.lowerArgs(imp.fn, args)
	if err != nil {
		return nil, err
	}
	asyncPtr := abi.FatPtr(imp.raw(raw...))
	if err := asyncPtr.Validate(); err != nil {
		panic(err)
	}
	return ImportFuture[T](rt, asyncPtr), nil
}
