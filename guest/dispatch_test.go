package guest

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/schema"
)

const testProtocol = `
export add: func(a: u32, b: u32) -> u32;
export echo: func(r: record) -> record;
export greet: func(name: string) -> string;
export double-slow: async func(x: u32) -> u32;
export notify: async func();
export fail: func(x: s32) -> s32;
import mul: func(a: u32, b: u32) -> u32;
import log: func(msg: string);
import lookup: func(key: string) -> record;
import slow-double: async func(x: u32) -> u32;
`

func newDispatchRuntime(t *testing.T) (*Runtime, *Arena, *fakeHost, *[]abi.FatPtr) {
	t.Helper()
	rt, arena, host := newTestRuntime()
	p := schema.MustParse(testProtocol)
	var pending []abi.FatPtr

	err := rt.ExportProtocol(p, map[string]any{
		"add":  func(a, b uint32) uint32 { return a + b },
		"echo": func(r record) record { return r },
		"greet": func(name string) (string, error) {
			if _, err := CallImport[codec.Unit](rt, "log", "greeting "+name); err != nil {
				return "", err
			}
			return "hello " + name, nil
		},
		"double-slow": func(aw *Awaiter, x uint32) (uint32, error) {
			fut, err := CallImportAsync[uint32](rt, "slow-double", x)
			if err != nil {
				return 0, err
			}
			res := Await(aw, fut)
			return res.Value + 1, res.Err
		},
		"notify": func(aw *Awaiter) {},
		"fail": func(x int32) (int32, error) {
			return 0, fmt.Errorf("refusing %d", x)
		},
	})
	if err != nil {
		t.Fatalf("ExportProtocol: %v", err)
	}

	imports := map[string]RawImport{
		"mul": func(args ...uint64) uint64 { return args[0] * args[1] },
		"log": func(args ...uint64) uint64 {
			msg, err := ImportValue[string](rt, abi.FatPtr(args[0]))
			if err != nil || msg == "" {
				t.Errorf("log import = %q, %v", msg, err)
			}
			return 0
		},
		"lookup": func(args ...uint64) uint64 {
			key, _ := ImportValue[string](rt, abi.FatPtr(args[0]))
			fp, _ := ExportValue(rt, record{Name: key})
			return uint64(fp)
		},
		"slow-double": pendingImport(rt, &pending),
	}
	for name, raw := range imports {
		fn, _ := p.Import(name)
		if err := rt.Import(fn, raw); err != nil {
			t.Fatalf("Import %s: %v", name, err)
		}
	}
	return rt, arena, host, &pending
}

func TestInvokePrimitive(t *testing.T) {
	rt, arena, _, _ := newDispatchRuntime(t)

	ret, err := rt.Invoke("add", 3, 4)
	if err != nil || ret != 7 {
		t.Fatalf("add(3, 4) = %d, %v", ret, err)
	}
	if arena.Stats().Mallocs != 0 {
		t.Errorf("primitive call allocated %d buffers", arena.Stats().Mallocs)
	}
}

func TestInvokeComplex(t *testing.T) {
	rt, arena, _, _ := newDispatchRuntime(t)
	in := record{Name: "nested", Attrs: map[string][]int32{"x": {1}, "y": {2, 3}}}

	arg, err := ExportValue(rt, in)
	if err != nil {
		t.Fatal(err)
	}
	ret, err := rt.Invoke("echo", uint64(arg))
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	out, err := ImportValue[record](rt, abi.FatPtr(ret))
	if err != nil {
		t.Fatalf("import result: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("echo = %+v, want %+v", out, in)
	}
	if st := arena.Stats(); st.Live != 0 || st.Mallocs != st.Frees {
		t.Errorf("allocator did not return to baseline: %+v", st)
	}
}

func TestInvokeErrors(t *testing.T) {
	rt, arena, _, _ := newDispatchRuntime(t)

	if _, err := rt.Invoke("missing"); !errors.IsNotExported(err) {
		t.Errorf("missing export error = %v", err)
	}
	if arena.Stats().Mallocs != 0 {
		t.Error("missing export touched memory")
	}

	if _, err := rt.Invoke("add", 1); err == nil {
		t.Error("arity mismatch should fail")
	}

	if _, err := rt.Invoke("fail", 1); err == nil {
		t.Error("handler error should be returned")
	}

	bad, _ := ExportValue(rt, 42)
	if _, err := rt.Invoke("echo", uint64(bad)); !errors.IsDecode(err) {
		t.Errorf("bad argument error = %v, want decode error", err)
	}
	if arena.Stats().Live != 0 {
		t.Error("argument buffer leaked after decode failure")
	}
}

func TestAsyncExport(t *testing.T) {
	rt, arena, host, pending := newDispatchRuntime(t)

	ret, err := rt.Invoke("double-slow", 20)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	asyncPtr := abi.FatPtr(ret)
	if v := CellAt(arena, asyncPtr).Load(); v.Status != abi.StatusPending {
		t.Fatalf("status right after call = %v, want pending", v.Status)
	}
	if len(*pending) != 1 || rt.PendingWakers() != 1 {
		t.Fatalf("pending imports=%d wakers=%d", len(*pending), rt.PendingWakers())
	}

	result, _ := ExportValue(rt, uint32(40))
	rt.ResolveAsyncValue((*pending)[0], result)

	if len(host.resolved) != 1 || host.resolved[0].asyncPtr != asyncPtr {
		t.Fatalf("host resolutions = %+v", host.resolved)
	}
	v := CellAt(arena, asyncPtr).Load()
	if v.Status != abi.StatusReady {
		t.Fatalf("status after completion = %v", v.Status)
	}
	got, err := ImportValue[uint32](rt, v.Result())
	if err != nil || got != 41 {
		t.Errorf("async result = %d, %v", got, err)
	}

	rt.Heap().Free(asyncPtr)
	if st := arena.Stats(); st.Live != 0 {
		t.Errorf("leaked %d blocks: %+v", st.Live, st)
	}
}

func TestAsyncUnitExport(t *testing.T) {
	rt, _, host, _ := newDispatchRuntime(t)

	ret, err := rt.Invoke("notify")
	if err != nil {
		t.Fatal(err)
	}
	if len(host.resolved) != 1 || host.resolved[0].asyncPtr != abi.FatPtr(ret) {
		t.Fatalf("resolutions = %+v", host.resolved)
	}
	if !host.resolved[0].resultPtr.IsZero() {
		t.Errorf("unit result resolved with %v, want zero FatPtr", host.resolved[0].resultPtr)
	}
	if _, err := ImportValue[codec.Unit](rt, host.resolved[0].resultPtr); err != nil {
		t.Errorf("unit import: %v", err)
	}
}

func TestCallImport(t *testing.T) {
	rt, arena, _, _ := newDispatchRuntime(t)

	n, err := CallImport[int](rt, "mul", 6, uint8(7))
	if err != nil || n != 42 {
		t.Errorf("mul = %d, %v", n, err)
	}

	r, err := CallImport[record](rt, "lookup", "k")
	if err != nil || r.Name != "k" {
		t.Errorf("lookup = %+v, %v", r, err)
	}

	ret, err := rt.Invoke("greet", uint64(mustExport(t, rt, "bob")))
	if err != nil {
		t.Fatalf("greet: %v", err)
	}
	if s, err := ImportValue[string](rt, abi.FatPtr(ret)); err != nil || s != "hello bob" {
		t.Errorf("greet = %q, %v", s, err)
	}

	if _, err := CallImport[int](rt, "nope"); !errors.IsNotExported(err) {
		t.Errorf("unknown import error = %v", err)
	}
	if _, err := CallImport[uint32](rt, "slow-double", 1); err == nil {
		t.Error("sync call of async import should fail")
	}
	if _, err := CallImport[string](rt, "mul", 1, 2); err == nil {
		t.Error("u32 result into string should fail")
	}
	if _, err := CallImport[int](rt, "mul", -1, 2); err == nil {
		t.Error("negative u32 argument should fail")
	}

	if st := arena.Stats(); st.Live != 0 {
		t.Errorf("leaked %d blocks", st.Live)
	}
}

func TestExportRegistrationErrors(t *testing.T) {
	rt, _, _ := newTestRuntime()
	p := schema.MustParse(testProtocol)
	add, _ := p.Export("add")
	slow, _ := p.Export("double-slow")

	tests := []struct {
		name    string
		fn      *schema.Function
		handler any
	}{
		{"not a func", add, 42},
		{"wrong arity", add, func(a uint32) uint32 { return a }},
		{"string for u32", add, func(a, b string) uint32 { return 0 }},
		{"missing result", add, func(a, b uint32) {}},
		{"async without awaiter", slow, func(x uint32) uint32 { return x }},
		{"sync with awaiter", add, func(aw *Awaiter, a, b uint32) uint32 { return a }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rt.Export(tt.fn, tt.handler); err == nil {
				t.Error("Export should fail")
			}
		})
	}

	if err := rt.Export(add, func(a, b uint32) uint32 { return a }); err != nil {
		t.Fatal(err)
	}
	if err := rt.Export(add, func(a, b uint32) uint32 { return a }); err == nil {
		t.Error("duplicate export should fail")
	}
}

func mustExport(t *testing.T, rt *Runtime, v any) abi.FatPtr {
	t.Helper()
	fp, err := ExportValue(rt, v)
	if err != nil {
		t.Fatal(err)
	}
	return fp
}
