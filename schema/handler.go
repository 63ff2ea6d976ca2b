package schema

import (
	"fmt"
	"reflect"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/errors"
)

var errorType = reflect.TypeFor[error]()

// Handler is a Go function checked against a Function signature.
//
// The Go function takes an optional leading argument (a context or an
// awaiter, depending on the side), then one argument per protocol
// parameter. It returns nothing, an error, the result, or the result and
// an error.
type Handler struct {
	Fn     *Function
	Value  reflect.Value
	Lead   int
	Params []reflect.Type
	Result reflect.Type
	HasErr bool
}

// BindHandler checks handler against fn. When lead is non-nil and the
// handler's first argument has that type, it is reported through Lead and
// excluded from Params.
func BindHandler(fn *Function, handler any, lead reflect.Type) (*Handler, error) {
	rv := reflect.ValueOf(handler)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", handler)).
			Detail("handler for %s must be a function", fn.Name).
			Build()
	}
	t := rv.Type()
	if t.IsVariadic() {
		return nil, bindErr(fn, "variadic handlers are not supported")
	}

	h := &Handler{Fn: fn, Value: rv}
	if lead != nil && t.NumIn() > 0 && t.In(0) == lead {
		h.Lead = 1
	}

	if t.NumIn()-h.Lead != len(fn.Params) {
		return nil, bindErr(fn, fmt.Sprintf("handler takes %d arguments, protocol declares %d", t.NumIn()-h.Lead, len(fn.Params)))
	}
	for i, p := range fn.Params {
		pt := t.In(h.Lead + i)
		if k := PrimitiveKind(p.Type); k != abi.KindInvalid && !AcceptsPrimitive(k, pt) {
			return nil, bindErr(fn, fmt.Sprintf("parameter %s: %s cannot hold %s", p.Name, pt, k))
		}
		h.Params = append(h.Params, pt)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			h.HasErr = true
		} else {
			h.Result = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, bindErr(fn, "second result must be error")
		}
		h.Result, h.HasErr = t.Out(0), true
	default:
		return nil, bindErr(fn, "handler returns too many values")
	}

	if fn.Result == nil && h.Result != nil && !codec.IsUnit(h.Result) {
		return nil, bindErr(fn, "handler returns a value for a function without result")
	}
	if fn.Result != nil && h.Result == nil {
		return nil, bindErr(fn, "handler returns no value for "+TypeString(fn.Result))
	}
	if k := PrimitiveKind(fn.Result); fn.Result != nil && k != abi.KindInvalid && !AcceptsPrimitive(k, h.Result) {
		return nil, bindErr(fn, fmt.Sprintf("result %s cannot be lowered to %s", h.Result, k))
	}
	return h, nil
}

func bindErr(fn *Function, detail string) error {
	return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
		Detail("%s: %s", fn.Name, detail).
		Build()
}

// AcceptsPrimitive reports whether Go values of type t carry primitive
// values of kind k.
func AcceptsPrimitive(k abi.Kind, t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface:
		return t.NumMethod() == 0
	case reflect.Bool:
		return k == abi.KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return k != abi.KindBool && k != abi.KindInvalid
	}
	return false
}

// LiftPrimitive converts a raw stack value into the Go type of parameter i.
func (h *Handler) LiftPrimitive(i int, raw uint64) reflect.Value {
	k := PrimitiveKind(h.Fn.Params[i].Type)
	return LiftPrimitive(k, raw, h.Params[i])
}

// LiftPrimitive converts a raw stack value of kind k into a value of type t.
func LiftPrimitive(k abi.Kind, raw uint64, t reflect.Type) reflect.Value {
	v := reflect.ValueOf(abi.DecodePrimitive(k, raw))
	if t.Kind() == reflect.Interface {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out
	}
	return v.Convert(t)
}

// DecodeParam decodes parameter i from its serialized form. Nil data is the
// empty value, accepted only for unit parameters.
func (h *Handler) DecodeParam(i int, data []byte) (reflect.Value, error) {
	t := h.Params[i]
	ptr := reflect.New(t)
	if data == nil {
		if codec.IsUnit(t) {
			return ptr.Elem(), nil
		}
		return reflect.Value{}, errors.EmptyResult(errors.PhaseDecode, t.String())
	}
	if err := codec.Deserialize(data, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// Call invokes the handler. The returned value is invalid when the handler
// has no result.
func (h *Handler) Call(lead []reflect.Value, args []reflect.Value) (reflect.Value, error) {
	in := make([]reflect.Value, 0, len(lead)+len(args))
	in = append(in, lead[:h.Lead]...)
	in = append(in, args...)
	out := h.Value.Call(in)

	var result reflect.Value
	if h.Result != nil {
		result = out[0]
	}
	if h.HasErr {
		if e := out[len(out)-1]; !e.IsNil() {
			return reflect.Value{}, e.Interface().(error)
		}
	}
	return result, nil
}
