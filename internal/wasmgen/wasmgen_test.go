package wasmgen

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/fp-bridge/abi"
)

func TestLEB128(t *testing.T) {
	u := []struct {
		in   uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{0xffffffff, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range u {
		if got := appendU32(nil, tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("appendU32(%d) = %x, want %x", tt.in, got, tt.want)
		}
	}

	s := []struct {
		in   int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-16, []byte{0x70}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range s {
		if got := appendS64(nil, tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("appendS64(%d) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestEmptyModule(t *testing.T) {
	want := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	if got := New().Bytes(); !bytes.Equal(got, want) {
		t.Errorf("empty module = %x", got)
	}
}

func TestTypeDedup(t *testing.T) {
	m := New()
	a := m.typeIndex([]ValType{I32}, []ValType{I64})
	b := m.typeIndex([]ValType{I32}, []ValType{I64})
	c := m.typeIndex(nil, nil)
	if a != b || a == c || len(m.types) != 2 {
		t.Errorf("type indices %d %d %d, %d types", a, b, c, len(m.types))
	}
}

func TestImportAfterFuncPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	m := New()
	m.Func(nil, nil, nil, Body())
	m.Import("fp", "late", nil, nil)
}

func TestGuestRunsOnWazero(t *testing.T) {
	ctx := context.Background()

	g := NewGuest()
	add := g.Func([]ValType{I32, I32}, []ValType{I32}, nil, Body().LocalGet(0).LocalGet(1).I32Add())
	g.ExportGen("add", add)

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	var resolved [][2]uint64
	_, err := r.NewHostModuleBuilder(abi.ImportModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			resolved = append(resolved, [2]uint64{stack[0], stack[1]})
		}), []api.ValueType{api.ValueTypeI64, api.ValueTypeI64}, nil).
		Export(abi.HostResolveName).
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	mod, err := r.Instantiate(ctx, g.Bytes())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("__fp_gen_add").Call(ctx, 40, 2)
	if err != nil || res[0] != 42 {
		t.Fatalf("add = %v, %v", res, err)
	}

	malloc := mod.ExportedFunction(abi.MallocName)
	res, err = malloc.Call(ctx, 5)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	first := abi.FatPtr(res[0])
	if first.Ptr() != HeapBase || first.Len() != 5 {
		t.Errorf("first block = %s", first)
	}
	res, _ = malloc.Call(ctx, 12)
	second := abi.FatPtr(res[0])
	if second.Ptr() != HeapBase+16 || second.Ptr()%abi.MallocAlignment != 0 {
		t.Errorf("second block = %s", second)
	}

	if _, err := mod.ExportedFunction(abi.FreeName).Call(ctx, uint64(first)); err != nil {
		t.Fatalf("free: %v", err)
	}
	if _, err := mod.ExportedFunction(abi.FreeName).Call(ctx, 0); err != nil {
		t.Fatalf("free(0): %v", err)
	}

	if _, err := mod.ExportedFunction(abi.GuestResolveName).Call(ctx, uint64(second), uint64(abi.ToFatPtr(2048, 3))); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rec, ok := mod.Memory().Read(second.Ptr(), abi.AsyncValueSize)
	if !ok {
		t.Fatal("record out of bounds")
	}
	v, err := abi.DecodeAsyncValue(rec)
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != abi.StatusReady || v.Ptr != 2048 || v.Len != 3 {
		t.Errorf("record = %+v", v)
	}

	for name, want := range map[string]uint64{"allocs": 2, "frees": 1, "resolved": 1} {
		if got := mod.ExportedGlobal(name).Get(); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
	if len(resolved) != 0 {
		t.Errorf("host resolve called %d times", len(resolved))
	}
}

func TestNameSection(t *testing.T) {
	ctx := context.Background()

	m := New()
	m.Import("env", "tick", nil, nil)
	seven := m.Func(nil, []ValType{I32}, nil, Body().I32Const(7))
	m.Export("seven", seven)
	m.Export("alias", seven)
	helper := m.Func(nil, nil, nil, Body())
	m.Name(helper, "helper")
	m.Export("run", helper)

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	compiled, err := r.CompileModule(ctx, m.Bytes())
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}

	defs := compiled.ExportedFunctions()
	tests := []struct{ export, name string }{
		{"seven", "seven"},
		{"alias", "seven"},
		{"run", "helper"},
	}
	for _, tt := range tests {
		def, ok := defs[tt.export]
		if !ok {
			t.Fatalf("export %s missing", tt.export)
		}
		if got := def.Name(); got != tt.name {
			t.Errorf("%s: name = %q, want %q", tt.export, got, tt.name)
		}
	}
}
