package host

import (
	"context"
	"testing"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/internal/wasmgen"
	"github.com/wippyai/fp-bridge/schema"
)

const fixtureProtocol = `
export add: func(a: u32, b: u32) -> u32;
export echo: func(v: payload) -> payload;
export fetch: async func(req: request) -> request;
export shout: func(msg: string);
export square: func(x: u32) -> u32;
export start-double: func(x: u32);
export boom: func();
export bad: func(a: u32, b: u32) -> u32;
export lonely: func(msg: string);
import log: func(msg: string);
import mul: func(a: u32, b: u32) -> u32;
import slow-double: async func(x: u32) -> u32;
`

var fixtureSchema = schema.MustParse(fixtureProtocol)

type payload struct {
	Name   string  `msgpack:"name"`
	Values []int32 `msgpack:"values"`
}

type request struct {
	URL     string            `msgpack:"url"`
	Headers map[string]string `msgpack:"headers"`
}

var (
	i32 = []wasmgen.ValType{wasmgen.I32}
	i64 = []wasmgen.ValType{wasmgen.I64}
)

// fixtureWasm assembles a guest implementing the fixture protocol by hand.
//
// fetch stores its request and a fresh AsyncValue; the export "complete"
// resolves that value with the request buffer. start-double calls the async
// import and keeps the returned AsyncValue for the export "pending".
func fixtureWasm() []byte {
	g := wasmgen.NewGuest(
		wasmgen.Import{Name: abi.ExportName("log"), Params: i64},
		wasmgen.Import{Name: abi.ExportName("mul"), Params: []wasmgen.ValType{wasmgen.I32, wasmgen.I32}, Results: i32},
		wasmgen.Import{Name: abi.ExportName("slow-double"), Params: i32, Results: i64},
	)
	pendingAsync := g.Global(wasmgen.I64, 0)
	pendingReq := g.Global(wasmgen.I64, 0)
	pendingDouble := g.Global(wasmgen.I64, 0)

	g.ExportGen("add", g.Func([]wasmgen.ValType{wasmgen.I32, wasmgen.I32}, i32, nil,
		wasmgen.Body().LocalGet(0).LocalGet(1).I32Add()))

	g.ExportGen("echo", g.Func(i64, i64, nil, wasmgen.Body().LocalGet(0)))

	g.ExportGen("fetch", g.Func(i64, i64, i64, wasmgen.Body().
		I32Const(abi.AsyncValueSize).Call(g.Malloc).LocalSet(1).
		LocalGet(1).I64Const(32).I64ShrU().I32WrapI64().I32Const(int32(abi.StatusPending)).I32Store(abi.StatusOffset).
		LocalGet(1).GlobalSet(pendingAsync).
		LocalGet(0).GlobalSet(pendingReq).
		LocalGet(1)))

	g.Export("complete", g.Func(nil, nil, nil, wasmgen.Body().
		GlobalGet(pendingAsync).GlobalGet(pendingReq).Call(g.HostResolve)))

	g.ExportGen("shout", g.Func(i64, nil, nil, wasmgen.Body().
		LocalGet(0).Call(g.ImportIndex(abi.ExportName("log")))))

	g.ExportGen("square", g.Func(i32, i32, nil, wasmgen.Body().
		LocalGet(0).LocalGet(0).Call(g.ImportIndex(abi.ExportName("mul")))))

	g.ExportGen("start-double", g.Func(i32, nil, nil, wasmgen.Body().
		LocalGet(0).Call(g.ImportIndex(abi.ExportName("slow-double"))).GlobalSet(pendingDouble)))

	g.Export("pending", g.Func(nil, i64, nil, wasmgen.Body().GlobalGet(pendingDouble)))

	g.ExportGen("boom", g.Func(nil, nil, nil, wasmgen.Body().Unreachable()))

	g.ExportGen("bad", g.Func([]wasmgen.ValType{wasmgen.I32, wasmgen.I32}, nil, nil, wasmgen.Body()))

	return g.Bytes()
}

// fixture holds a running fixture guest and what its imports observed.
type fixture struct {
	rt     *Runtime
	mod    *Module
	inst   *Instance
	logged []string
}

func defaultHandlers(f *fixture) map[string]any {
	return map[string]any{
		"log": func(msg string) { f.logged = append(f.logged, msg) },
		"mul": func(a, b uint32) uint32 { return a * b },
		"slow-double": func(ctx context.Context, x uint32) (uint32, error) {
			return 2 * x, nil
		},
	}
}

func newFixture(t *testing.T, cfg *Config, override map[string]any) *fixture {
	t.Helper()
	ctx := context.Background()

	rt, err := NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	f := &fixture{rt: rt}
	handlers := defaultHandlers(f)
	for name, h := range override {
		handlers[name] = h
	}
	if err := rt.RegisterImports(fixtureSchema, handlers); err != nil {
		t.Fatalf("RegisterImports: %v", err)
	}

	f.mod, err = rt.Load(ctx, fixtureWasm(), fixtureSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.inst, err = f.mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	t.Cleanup(func() { f.inst.Close(ctx) })
	return f
}

// counter reads one of the fixture allocator counters.
func (f *fixture) counter(t *testing.T, name string) uint64 {
	t.Helper()
	g := f.inst.mod.ExportedGlobal(name)
	if g == nil {
		t.Fatalf("global %s not exported", name)
	}
	return g.Get()
}

func (f *fixture) expectBalanced(t *testing.T, allocs uint64) {
	t.Helper()
	a, fr := f.counter(t, "allocs"), f.counter(t, "frees")
	if a != allocs || fr != allocs {
		t.Errorf("allocs=%d frees=%d, want %d each", a, fr, allocs)
	}
}
