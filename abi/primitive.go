package abi

import (
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/wippyai/fp-bridge/errors"
)

// Kind identifies a value that crosses the boundary without marshalling.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindU8
	KindU16
	KindU32
	KindU64
	KindS8
	KindS16
	KindS32
	KindS64
	KindF32
	KindF64
	KindChar
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindU8:      "u8",
	KindU16:     "u16",
	KindU32:     "u32",
	KindU64:     "u64",
	KindS8:      "s8",
	KindS16:     "s16",
	KindS32:     "s32",
	KindS64:     "s64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindChar:    "char",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// WasmType is a core wasm value type, numbered as in the binary format.
type WasmType byte

const (
	I32 WasmType = 0x7f
	I64 WasmType = 0x7e
	F32 WasmType = 0x7d
	F64 WasmType = 0x7c
)

func (t WasmType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return fmt.Sprintf("valtype(0x%x)", byte(t))
}

// FatPtrType is the core type every non-primitive value is lowered to.
const FatPtrType = I64

// WasmType returns the core type a primitive is lowered to.
func (k Kind) WasmType() WasmType {
	switch k {
	case KindU64, KindS64:
		return I64
	case KindF32:
		return F32
	case KindF64:
		return F64
	default:
		return I32
	}
}

// GoType returns the canonical Go type of a primitive kind.
func (k Kind) GoType() reflect.Type {
	switch k {
	case KindBool:
		return reflect.TypeFor[bool]()
	case KindU8:
		return reflect.TypeFor[uint8]()
	case KindU16:
		return reflect.TypeFor[uint16]()
	case KindU32:
		return reflect.TypeFor[uint32]()
	case KindU64:
		return reflect.TypeFor[uint64]()
	case KindS8:
		return reflect.TypeFor[int8]()
	case KindS16:
		return reflect.TypeFor[int16]()
	case KindS32:
		return reflect.TypeFor[int32]()
	case KindS64:
		return reflect.TypeFor[int64]()
	case KindF32:
		return reflect.TypeFor[float32]()
	case KindF64:
		return reflect.TypeFor[float64]()
	case KindChar:
		return reflect.TypeFor[rune]()
	}
	return nil
}

var intRange = map[Kind][2]int64{
	KindU8:  {0, math.MaxUint8},
	KindU16: {0, math.MaxUint16},
	KindU32: {0, math.MaxUint32},
	KindS8:  {math.MinInt8, math.MaxInt8},
	KindS16: {math.MinInt16, math.MaxInt16},
	KindS32: {math.MinInt32, math.MaxInt32},
}

// EncodePrimitive lowers a Go scalar to a raw stack value of kind k.
// Any Go integer or float type is accepted as long as the value fits.
func EncodePrimitive(k Kind, v any) (uint64, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, errors.NilPointer(errors.PhaseEncode, nil, k.String())
	}

	switch k {
	case KindBool:
		if rv.Kind() != reflect.Bool {
			return 0, mismatch(rv, k)
		}
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil

	case KindF32:
		f, ok := toFloat(rv)
		if !ok {
			return 0, mismatch(rv, k)
		}
		return uint64(math.Float32bits(float32(f))), nil

	case KindF64:
		f, ok := toFloat(rv)
		if !ok {
			return 0, mismatch(rv, k)
		}
		return math.Float64bits(f), nil

	case KindU64:
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return rv.Uint(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if rv.Int() < 0 {
				return 0, errors.Overflow(errors.PhaseEncode, nil, rv.Int(), k.String())
			}
			return uint64(rv.Int()), nil
		}
		return 0, mismatch(rv, k)

	case KindS64:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return uint64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			if rv.Uint() > math.MaxInt64 {
				return 0, errors.Overflow(errors.PhaseEncode, nil, rv.Uint(), k.String())
			}
			return rv.Uint(), nil
		}
		return 0, mismatch(rv, k)

	case KindChar:
		n, ok := toInt(rv)
		if !ok {
			return 0, mismatch(rv, k)
		}
		if n < 0 || n > utf8.MaxRune || !utf8.ValidRune(rune(n)) {
			return 0, errors.InvalidData(errors.PhaseEncode, nil, fmt.Sprintf("invalid unicode scalar %d", n))
		}
		return uint64(uint32(n)), nil

	case KindU8, KindU16, KindU32, KindS8, KindS16, KindS32:
		n, ok := toInt(rv)
		if !ok {
			return 0, mismatch(rv, k)
		}
		r := intRange[k]
		if n < r[0] || n > r[1] {
			return 0, errors.Overflow(errors.PhaseEncode, nil, n, k.String())
		}
		return uint64(uint32(n)), nil
	}

	return 0, errors.Unsupported(errors.PhaseEncode, "primitive kind "+k.String())
}

// DecodePrimitive lifts a raw stack value into the canonical Go type of k.
func DecodePrimitive(k Kind, raw uint64) any {
	switch k {
	case KindBool:
		return uint32(raw) != 0
	case KindU8:
		return uint8(raw)
	case KindU16:
		return uint16(raw)
	case KindU32:
		return uint32(raw)
	case KindU64:
		return raw
	case KindS8:
		return int8(raw)
	case KindS16:
		return int16(raw)
	case KindS32:
		return int32(raw)
	case KindS64:
		return int64(raw)
	case KindF32:
		return math.Float32frombits(uint32(raw))
	case KindF64:
		return math.Float64frombits(raw)
	case KindChar:
		return rune(uint32(raw))
	}
	return nil
}

func toInt(rv reflect.Value) (int64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return math.MaxInt64, true
		}
		return int64(u), true
	}
	return 0, false
}

func toFloat(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func mismatch(rv reflect.Value, k Kind) *errors.Error {
	return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		GoType(rv.Type().String()).
		WireType(k.String()).
		Build()
}
