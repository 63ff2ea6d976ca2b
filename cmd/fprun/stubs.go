package main

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/host"
	"github.com/wippyai/fp-bridge/schema"
)

var (
	anyType     = reflect.TypeFor[any]()
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// registerStubs binds every import of p to a handler that logs the call
// and returns the zero value of its result. Complex results are nil, which
// the guest reads as an empty document.
func registerStubs(rt *host.Runtime, p *schema.Protocol, log *zap.Logger) error {
	for _, name := range p.ImportNames() {
		fn, _ := p.Import(name)
		if err := rt.RegisterImport(fn, stubHandler(fn, log)); err != nil {
			return err
		}
	}
	return nil
}

func stubHandler(fn *schema.Function, log *zap.Logger) any {
	in := []reflect.Type{contextType}
	for range fn.Params {
		in = append(in, anyType)
	}
	var out []reflect.Type
	if fn.Result != nil {
		out = append(out, anyType)
	}
	out = append(out, errorType)

	var zero reflect.Value
	if k := schema.PrimitiveKind(fn.Result); k != abi.KindInvalid {
		zero = reflect.ValueOf(abi.DecodePrimitive(k, 0))
	}

	typ := reflect.FuncOf(in, out, false)
	return reflect.MakeFunc(typ, func(args []reflect.Value) []reflect.Value {
		fields := []zap.Field{zap.String("import", fn.Name), zap.Bool("async", fn.Async)}
		for i, p := range fn.Params {
			fields = append(fields, zap.Any(p.Name, args[i+1].Interface()))
		}
		log.Info("host import called", fields...)

		results := make([]reflect.Value, 0, 2)
		if fn.Result != nil {
			v := reflect.New(anyType).Elem()
			if zero.IsValid() {
				v.Set(zero)
			}
			results = append(results, v)
		}
		return append(results, reflect.Zero(errorType))
	}).Interface()
}
