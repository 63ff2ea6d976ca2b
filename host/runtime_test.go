package host

import (
	"context"
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/internal/wasmgen"
	"github.com/wippyai/fp-bridge/schema"
)

func TestMissingImports(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	mul, _ := fixtureSchema.Import("mul")
	if err := rt.RegisterImport(mul, func(a, b uint32) uint32 { return a * b }); err != nil {
		t.Fatalf("RegisterImport: %v", err)
	}

	_, err = rt.Load(ctx, fixtureWasm(), fixtureSchema)
	var missing *errors.MissingImportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("Load = %v, want MissingImportsError", err)
	}
	var got []string
	for _, imp := range missing.Imports {
		if imp.Namespace != abi.ImportModule {
			t.Errorf("namespace = %q", imp.Namespace)
		}
		got = append(got, imp.Function)
	}
	want := []string{"__fp_gen_log", "__fp_gen_slow_double"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("missing = %v, want %v", got, want)
	}
}

func TestWASIImports(t *testing.T) {
	ctx := context.Background()
	m := wasmgen.New()
	m.Import("wasi_snapshot_preview1", "proc_exit", []wasmgen.ValType{wasmgen.I32}, nil)
	wasm := m.Bytes()

	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)
	if _, err := rt.Load(ctx, wasm, schema.NewProtocol()); !stderrors.Is(err, &errors.MissingImportsError{}) {
		t.Errorf("Load without WASI = %v", err)
	}

	wasiRT, err := NewWithConfig(ctx, &Config{EnableWASI: true})
	if err != nil {
		t.Fatal(err)
	}
	defer wasiRT.Close(ctx)
	if _, err := wasiRT.Load(ctx, wasm, schema.NewProtocol()); err != nil {
		t.Errorf("Load with WASI = %v", err)
	}
}

func TestInstantiateRequiresAllocator(t *testing.T) {
	ctx := context.Background()
	m := wasmgen.New()
	m.Memory(1, 0, "memory")

	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	mod, err := rt.Load(ctx, m.Bytes(), schema.NewProtocol())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = mod.Instantiate(ctx)
	if kindOf(err) != errors.KindInstantiation || !errors.IsNotExported(err) {
		t.Errorf("Instantiate = %v, want instantiation error for missing %s", err, abi.MallocName)
	}
}

func TestInstantiateRequiresGuestResolve(t *testing.T) {
	ctx := context.Background()
	g := wasmgen.New()
	g.Memory(1, 0, "memory")
	g.Export(abi.MallocName, g.Func([]wasmgen.ValType{wasmgen.I32}, []wasmgen.ValType{wasmgen.I64}, nil,
		wasmgen.Body().I64Const(0)))
	g.Export(abi.FreeName, g.Func([]wasmgen.ValType{wasmgen.I64}, nil, nil, wasmgen.Body()))

	p := schema.MustParse("import later: async func() -> string;")

	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	mod, err := rt.Load(ctx, g.Bytes(), p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := mod.Instantiate(ctx); !errors.IsNotExported(err) {
		t.Errorf("Instantiate = %v, want missing %s", err, abi.GuestResolveName)
	}
}

func TestRegisterImportErrors(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	mul, _ := fixtureSchema.Import("mul")
	tests := []struct {
		name    string
		handler any
	}{
		{"not a function", 42},
		{"wrong arity", func(a uint32) uint32 { return a }},
		{"string for u32", func(a string, b uint32) uint32 { return b }},
		{"missing result", func(a, b uint32) {}},
		{"bad second result", func(a, b uint32) (uint32, bool) { return 0, false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rt.RegisterImport(mul, tt.handler); kindOf(err) != errors.KindRegistration {
				t.Errorf("RegisterImport = %v, want registration error", err)
			}
		})
	}

	if err := rt.RegisterImport(mul, func(ctx context.Context, a, b uint32) uint32 { return a * b }); err != nil {
		t.Fatalf("RegisterImport with context: %v", err)
	}
	if err := rt.RegisterImport(mul, func(a, b uint32) uint32 { return 0 }); kindOf(err) != errors.KindRegistration {
		t.Errorf("duplicate = %v", err)
	}

	if _, err := rt.Load(ctx, wasmgen.New().Bytes(), schema.NewProtocol()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	logFn, _ := fixtureSchema.Import("log")
	if err := rt.RegisterImport(logFn, func(string) {}); kindOf(err) != errors.KindRegistration {
		t.Errorf("register after Load = %v", err)
	}
}

func TestRegisterImportsMismatch(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	f := &fixture{}
	handlers := defaultHandlers(f)
	delete(handlers, "log")
	if err := rt.RegisterImports(fixtureSchema, handlers); kindOf(err) != errors.KindNotFound {
		t.Errorf("missing handler = %v", err)
	}

	handlers = defaultHandlers(f)
	handlers["unknown"] = func() {}
	if err := rt.RegisterImports(fixtureSchema, handlers); kindOf(err) != errors.KindNotFound {
		t.Errorf("unknown handler = %v", err)
	}
}

type fixtureHost struct {
	logged []string
}

func (h *fixtureHost) Log(msg string)         { h.logged = append(h.logged, msg) }
func (h *fixtureHost) Mul(a, b uint32) uint32 { return a * b }
func (h *fixtureHost) SlowDouble(ctx context.Context, x uint32) (uint32, error) {
	return 2 * x, nil
}
func (h *fixtureHost) Reset() { h.logged = nil }

func TestRegisterHost(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	h := &fixtureHost{}
	if err := rt.RegisterHost(fixtureSchema, h); err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}
	mod, err := rt.Load(ctx, fixtureWasm(), fixtureSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Call(ctx, "shout", "via host"); err != nil {
		t.Fatalf("shout: %v", err)
	}
	if !reflect.DeepEqual(h.logged, []string{"via host"}) {
		t.Errorf("logged = %v", h.logged)
	}
}

func TestMultipleInstances(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	other, err := f.mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("second Instantiate: %v", err)
	}
	defer other.Close(ctx)

	if _, err := other.Call(ctx, "echo", payload{Name: "b"}); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if got := f.counter(t, "allocs"); got != 0 {
		t.Errorf("first instance saw %d allocations", got)
	}
}

func TestToKebabCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Log", "log"},
		{"SlowDouble", "slow-double"},
		{"GetHTTPURL", "get-httpurl"},
		{"ParseHTTPRequest", "parse-http-request"},
		{"URL", "url"},
		{"FetchURLData", "fetch-url-data"},
		{"ID", "id"},
		{"already", "already"},
	}
	for _, tt := range tests {
		if got := toKebabCase(tt.in); got != tt.want {
			t.Errorf("toKebabCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
