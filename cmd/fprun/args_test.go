package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/schema"
)

func TestConvertArg(t *testing.T) {
	tests := []struct {
		typ   string
		value string
		want  any
	}{
		{"u32", "42", uint64(42)},
		{"u8", "0x10", uint64(16)},
		{"s64", "-7", int64(-7)},
		{"f32", "1.5", 1.5},
		{"bool", "true", true},
		{"char", "λ", uint32('λ')},
		{"string", "hello", "hello"},
		{"string", `"quoted"`, "quoted"},
		{"list<u32>", "[1, 2, 3]", []any{uint64(1), uint64(2), uint64(3)}},
		{"point", `{"x": -1, "y": 2.5, "tag": null}`, map[string]any{"x": int64(-1), "y": 2.5, "tag": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.value, func(t *testing.T) {
			typ, err := schema.ParseType(tt.typ)
			if err != nil {
				t.Fatal(err)
			}
			got, err := convertArg(tt.value, typ)
			if err != nil {
				t.Fatalf("convertArg: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConvertArgErrors(t *testing.T) {
	tests := []struct{ typ, value string }{
		{"u32", "abc"},
		{"bool", "maybe"},
		{"char", "ab"},
		{"point", "{not json"},
		{"payload", "@/does/not/exist"},
	}
	for _, tt := range tests {
		typ, err := schema.ParseType(tt.typ)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := convertArg(tt.value, typ); err == nil {
			t.Errorf("convertArg(%q, %s) should fail", tt.value, tt.typ)
		}
	}
}

func TestConvertArgFile(t *testing.T) {
	data, err := codec.Serialize(map[string]any{"name": "file"})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "payload.msgpack")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	typ, _ := schema.ParseType("payload")
	got, err := convertArg("@"+path, typ)
	if err != nil {
		t.Fatalf("convertArg: %v", err)
	}
	raw, ok := got.(codec.Raw)
	if !ok || !reflect.DeepEqual([]byte(raw), data) {
		t.Errorf("got %#v, want raw file contents", got)
	}
}

func TestConvertArgs(t *testing.T) {
	fn, err := schema.ParseFunction("add: func(a: u32, b: u32) -> u32")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := convertArgs(fn, []string{"1"}); err == nil {
		t.Error("wrong arity should fail")
	}
	args, err := convertArgs(fn, []string{"1", "2"})
	if err != nil {
		t.Fatalf("convertArgs: %v", err)
	}
	if !reflect.DeepEqual(args, []any{uint64(1), uint64(2)}) {
		t.Errorf("args = %v", args)
	}
}

func TestStubHandler(t *testing.T) {
	tests := []struct {
		decl string
		want any
	}{
		{"log: func(msg: string)", nil},
		{"mul: func(a: u32, b: u32) -> u32", uint32(0)},
		{"fetch: async func(url: string) -> response", nil},
		{"flag: func() -> bool", false},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			fn, err := schema.ParseFunction(tt.decl)
			if err != nil {
				t.Fatal(err)
			}
			h, err := schema.BindHandler(fn, stubHandler(fn, zap.NewNop()), contextType)
			if err != nil {
				t.Fatalf("BindHandler: %v", err)
			}
			args := make([]reflect.Value, len(fn.Params))
			for i := range args {
				args[i] = reflect.ValueOf("x")
			}
			out, err := h.Call([]reflect.Value{reflect.ValueOf(context.Background())}, args)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			var got any
			if out.IsValid() {
				got = out.Interface()
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("result = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "()"},
		{"hi", `"hi"`},
		{[]byte{0xde, 0xad}, "dead"},
		{uint32(7), "7"},
	}
	for _, tt := range tests {
		if got := formatResult(tt.in); got != tt.want {
			t.Errorf("formatResult(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
