package codec

import (
	stderrors "errors"
	"math"
	"reflect"
	"testing"

	"github.com/wippyai/fp-bridge/errors"
)

type inner struct {
	Label string  `msgpack:"label"`
	Ratio float64 `msgpack:"ratio"`
}

type payload struct {
	Name   string            `msgpack:"name"`
	Tags   []string          `msgpack:"tags"`
	Scores map[string]int32  `msgpack:"scores"`
	ByID   map[uint32]string `msgpack:"by_id"`
	Nested inner             `msgpack:"nested"`
	Opt    *inner            `msgpack:"opt"`
	Blob   []byte            `msgpack:"blob"`
	Small  int8              `msgpack:"small"`
	Big    uint64            `msgpack:"big"`
	Single float32           `msgpack:"single"`
	Flag   bool              `msgpack:"flag"`
	Triple [3]uint16         `msgpack:"triple"`
	Char   rune              `msgpack:"char"`
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"bool", true},
		{"u8", uint8(255)},
		{"s8", int8(-128)},
		{"u16", uint16(65535)},
		{"s32", int32(math.MinInt32)},
		{"u32", uint32(math.MaxUint32)},
		{"s64", int64(math.MinInt64)},
		{"u64", uint64(math.MaxUint64)},
		{"f32", float32(3.25)},
		{"f64", math.Pi},
		{"string", "héllo wörld"},
		{"empty string", ""},
		{"bytes", []byte{0, 1, 2, 0xff}},
		{"list", []uint32{1, 2, 3}},
		{"nested list", [][]string{{"a"}, {"b", "c"}}},
		{"string map", map[string]int64{"a": -1, "b": 2}},
		{"int map", map[int32]bool{-5: true, 7: false}},
		{"struct", payload{
			Name:   "shape",
			Tags:   []string{"x", "y"},
			Scores: map[string]int32{"a": 1, "b": -2},
			ByID:   map[uint32]string{1: "one", 300: "three hundred"},
			Nested: inner{Label: "in", Ratio: 0.5},
			Opt:    &inner{Label: "opt", Ratio: -1.5},
			Blob:   []byte("binary"),
			Small:  -3,
			Big:    math.MaxUint64,
			Single: 1.5,
			Flag:   true,
			Triple: [3]uint16{1, 2, 65535},
			Char:   'λ',
		}},
		{"struct with nil option", payload{Name: "bare", Tags: []string{"t"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Serialize(tt.value)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			out := reflect.New(reflect.TypeOf(tt.value))
			if err := Deserialize(data, out.Interface()); err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if got := out.Elem().Interface(); !reflect.DeepEqual(got, tt.value) {
				t.Errorf("round trip = %#v, want %#v", got, tt.value)
			}
		})
	}
}

func TestDeserializeValue(t *testing.T) {
	data, err := Serialize(inner{Label: "x", Ratio: 2})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := DeserializeValue[inner](data)
	if err != nil {
		t.Fatalf("DeserializeValue: %v", err)
	}
	if got.Label != "x" || got.Ratio != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestFieldNamesPreserved(t *testing.T) {
	type ab struct {
		A int `msgpack:"alpha"`
		B int `msgpack:"beta"`
	}
	type ba struct {
		Beta  int `msgpack:"beta"`
		Alpha int `msgpack:"alpha"`
		Extra int `msgpack:"extra"`
	}

	data, err := Serialize(ab{A: 1, B: 2})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := DeserializeValue[ba](data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Alpha != 1 || got.Beta != 2 || got.Extra != 0 {
		t.Errorf("reordered decode = %+v", got)
	}

	generic, err := DeserializeValue[map[string]any](data)
	if err != nil {
		t.Fatalf("Deserialize generic: %v", err)
	}
	if _, ok := generic["alpha"]; !ok {
		t.Errorf("encoded document should be keyed by field name, got %v", generic)
	}
}

func TestUnknownFields(t *testing.T) {
	data, err := Serialize(map[string]any{"label": "l", "surplus": 1})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	if _, err := DeserializeValue[inner](data); err != nil {
		t.Fatalf("default decoder should ignore unknown fields: %v", err)
	}

	strict := &Decoder{DisallowUnknownFields: true}
	var out inner
	err = strict.Decode(data, &out)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindFieldUnknown {
		t.Fatalf("strict decode error = %v, want field_unknown", err)
	}
}

func TestDecodeErrorPath(t *testing.T) {
	type point struct {
		X int32 `msgpack:"x"`
	}
	type shape struct {
		Points []point `msgpack:"points"`
	}

	data, err := Serialize(map[string]any{
		"points": []any{
			map[string]any{"x": 1},
			map[string]any{"x": "oops"},
		},
	})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	_, err = DeserializeValue[shape](data)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !errors.IsDecode(err) {
		t.Fatalf("IsDecode(%v) = false", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("error type = %T", err)
	}
	if got := errors.FormatPath(e.Path); got != "points[1].x" {
		t.Errorf("path = %q, want points[1].x", got)
	}
	if e.GoType != "int32" || e.WireType != "string" {
		t.Errorf("GoType=%q WireType=%q", e.GoType, e.WireType)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		target any
		kind   errors.Kind
		path   string
	}{
		{"overflow", map[string]any{"v": 300}, &struct {
			V uint8 `msgpack:"v"`
		}{}, errors.KindOverflow, "v"},
		{"negative into unsigned", map[string]any{"v": -1}, &struct {
			V uint32 `msgpack:"v"`
		}{}, errors.KindOverflow, "v"},
		{"string into bool", "yes", new(bool), errors.KindTypeMismatch, ""},
		{"map into list", map[string]any{"a": 1}, new([]int), errors.KindTypeMismatch, ""},
		{"array length", []int{1, 2}, new([3]int), errors.KindTypeMismatch, ""},
		{"nested map value", map[string]any{"m": map[string]any{"k": "v"}}, &struct {
			M map[string]int `msgpack:"m"`
		}{}, errors.KindTypeMismatch, "m.k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Serialize(tt.input)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			err = Deserialize(data, tt.target)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("error = %v, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseDecode || e.Kind != tt.kind {
				t.Errorf("error = %v, want decode/%s", e, tt.kind)
			}
			if got := errors.FormatPath(e.Path); got != tt.path {
				t.Errorf("path = %q, want %q", got, tt.path)
			}
		})
	}
}

func TestMalformedInput(t *testing.T) {
	var s string
	err := Deserialize([]byte{0xc1}, &s)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidData {
		t.Fatalf("error = %v, want invalid_data", err)
	}

	if err := Deserialize(nil, &s); err == nil {
		t.Fatal("empty input should fail")
	}
}

func TestDecodeTargetMustBePointer(t *testing.T) {
	var s string
	err := Deserialize([]byte{0xa0}, s)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("error = %v, want invalid_input", err)
	}
}

func TestRaw(t *testing.T) {
	raw := Raw{0x93, 0x01, 0x02, 0x03}
	data, err := Serialize(raw)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !reflect.DeepEqual([]byte(data), []byte(raw)) {
		t.Errorf("raw payload was re-encoded: %x", data)
	}

	var out Raw
	if err := Deserialize(data, &out); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	data[0] = 0
	if out[0] != 0x93 {
		t.Error("raw decode must copy the input")
	}
}

func TestUnit(t *testing.T) {
	for _, in := range [][]byte{{0xc0}, {0x80}} {
		var u Unit
		if err := Deserialize(in, &u); err != nil {
			t.Errorf("Deserialize(%x) into unit: %v", in, err)
		}
	}
	if !IsUnit(reflect.TypeFor[Unit]()) {
		t.Error("IsUnit(Unit) = false")
	}
	if IsUnit(reflect.TypeFor[inner]()) {
		t.Error("IsUnit(inner) = true")
	}
}

func TestInterfaceTarget(t *testing.T) {
	data, err := Serialize(map[string]any{"list": []any{"a", 1}, "n": nil})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var out any
	if err := Deserialize(data, &out); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", out)
	}
	list, ok := m["list"].([]any)
	if !ok || len(list) != 2 || list[0] != "a" {
		t.Errorf("list = %#v", m["list"])
	}
}

func TestEmbeddedStruct(t *testing.T) {
	type Base struct {
		ID uint32 `msgpack:"id"`
	}
	type derived struct {
		Base
		Name string `msgpack:"name"`
	}

	in := derived{Base: Base{ID: 9}, Name: "n"}
	data, err := Serialize(in)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	out, err := DeserializeValue[derived](data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}
