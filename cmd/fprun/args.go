package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/schema"
)

// convertArgs converts command line strings into call arguments for fn.
func convertArgs(fn *schema.Function, values []string) ([]any, error) {
	if len(values) != len(fn.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", fn.Name, len(fn.Params), len(values))
	}
	args := make([]any, len(values))
	for i, p := range fn.Params {
		v, err := convertArg(values[i], p.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

// convertArg converts one argument. Primitives are parsed from their text
// form, strings pass through unless quoted, "@path" reads a pre-encoded
// payload and anything else must be a JSON literal.
func convertArg(value string, t wit.Type) (any, error) {
	if k := schema.PrimitiveKind(t); k != abi.KindInvalid {
		return parsePrimitive(value, k)
	}
	if path, ok := strings.CutPrefix(value, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return codec.Raw(data), nil
	}
	if _, ok := t.(wit.String); ok && !strings.HasPrefix(value, `"`) {
		return value, nil
	}
	if !gjson.Valid(value) {
		return nil, fmt.Errorf("invalid JSON for %s: %s", schema.TypeString(t), value)
	}
	return jsonValue(gjson.Parse(value)), nil
}

func parsePrimitive(value string, k abi.Kind) (any, error) {
	switch k {
	case abi.KindBool:
		return strconv.ParseBool(value)
	case abi.KindU8, abi.KindU16, abi.KindU32, abi.KindU64:
		return strconv.ParseUint(value, 0, 64)
	case abi.KindS8, abi.KindS16, abi.KindS32, abi.KindS64:
		return strconv.ParseInt(value, 0, 64)
	case abi.KindF32, abi.KindF64:
		return strconv.ParseFloat(value, 64)
	case abi.KindChar:
		r, size := utf8.DecodeRuneInString(value)
		if r == utf8.RuneError || size != len(value) {
			return nil, fmt.Errorf("char argument must be a single character, got %q", value)
		}
		return uint32(r), nil
	}
	return nil, fmt.Errorf("unsupported primitive %s", k)
}

// jsonValue converts a parsed JSON document into the generic values the
// codec encodes. Integral numbers stay integers so they decode into integer
// fields on the other side.
func jsonValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.String:
		return r.Str
	case gjson.Number:
		if strings.ContainsAny(r.Raw, ".eE") {
			return r.Float()
		}
		if strings.HasPrefix(r.Raw, "-") {
			return r.Int()
		}
		return r.Uint()
	}

	if r.IsArray() {
		items := []any{}
		r.ForEach(func(_, v gjson.Result) bool {
			items = append(items, jsonValue(v))
			return true
		})
		return items
	}
	obj := map[string]any{}
	r.ForEach(func(k, v gjson.Result) bool {
		obj[k.Str] = jsonValue(v)
		return true
	})
	return obj
}

// formatResult renders a call result for display.
func formatResult(v any) string {
	switch v := v.(type) {
	case nil:
		return "()"
	case string:
		return strconv.Quote(v)
	case []byte:
		return fmt.Sprintf("%x", v)
	}
	return fmt.Sprintf("%v", v)
}
