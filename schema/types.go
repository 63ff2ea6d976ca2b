package schema

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/fp-bridge/abi"
)

// PrimitiveKind returns the pass-through kind of t, or abi.KindInvalid when
// t must be marshalled.
func PrimitiveKind(t wit.Type) abi.Kind {
	switch t.(type) {
	case wit.Bool:
		return abi.KindBool
	case wit.U8:
		return abi.KindU8
	case wit.U16:
		return abi.KindU16
	case wit.U32:
		return abi.KindU32
	case wit.U64:
		return abi.KindU64
	case wit.S8:
		return abi.KindS8
	case wit.S16:
		return abi.KindS16
	case wit.S32:
		return abi.KindS32
	case wit.S64:
		return abi.KindS64
	case wit.F32:
		return abi.KindF32
	case wit.F64:
		return abi.KindF64
	case wit.Char:
		return abi.KindChar
	}
	return abi.KindInvalid
}

// IsPrimitive reports whether values of t cross the boundary unchanged.
func IsPrimitive(t wit.Type) bool {
	return PrimitiveKind(t) != abi.KindInvalid
}

// WasmType returns the core type a value of t is lowered to.
func WasmType(t wit.Type) abi.WasmType {
	if k := PrimitiveKind(t); k != abi.KindInvalid {
		return k.WasmType()
	}
	return abi.FatPtrType
}

// TypeString renders t in protocol text syntax.
func TypeString(t wit.Type) string {
	if t == nil {
		return "()"
	}
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		switch k := v.Kind.(type) {
		case *wit.List:
			return "list<" + TypeString(k.Type) + ">"
		case *wit.Option:
			return "option<" + TypeString(k.Type) + ">"
		case *wit.Tuple:
			parts := make([]string, len(k.Types))
			for i, e := range k.Types {
				parts[i] = TypeString(e)
			}
			return "tuple<" + strings.Join(parts, ", ") + ">"
		case *wit.Result:
			switch {
			case k.OK == nil && k.Err == nil:
				return "result"
			case k.Err == nil:
				return "result<" + TypeString(k.OK) + ">"
			case k.OK == nil:
				return "result<_, " + TypeString(k.Err) + ">"
			}
			return "result<" + TypeString(k.OK) + ", " + TypeString(k.Err) + ">"
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// Named returns an opaque named type. Its values are marshalled by the
// codec; the schema does not describe their fields.
func Named(name string) wit.Type {
	n := name
	return &wit.TypeDef{Name: &n, Kind: &wit.Record{}}
}

// List, Option and Tuple build anonymous compound types.
func List(elem wit.Type) wit.Type { return &wit.TypeDef{Kind: &wit.List{Type: elem}} }

func Option(elem wit.Type) wit.Type { return &wit.TypeDef{Kind: &wit.Option{Type: elem}} }

func Tuple(elems ...wit.Type) wit.Type { return &wit.TypeDef{Kind: &wit.Tuple{Types: elems}} }

func Result(ok, err wit.Type) wit.Type {
	return &wit.TypeDef{Kind: &wit.Result{OK: ok, Err: err}}
}
