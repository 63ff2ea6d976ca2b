package codec

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/fp-bridge/errors"
)

// Decoder assigns decoded documents into Go values.
// The zero value ignores unknown struct fields.
type Decoder struct {
	// DisallowUnknownFields rejects map keys that match no struct field.
	DisallowUnknownFields bool
}

var defaultDecoder = &Decoder{}

var (
	rawType     = reflect.TypeFor[Raw]()
	timeType    = reflect.TypeFor[time.Time]()
	customType  = reflect.TypeFor[msgpack.CustomDecoder]()
	unmarshaler = reflect.TypeFor[msgpack.Unmarshaler]()
)

// Decode decodes data into out, which must be a non-nil pointer.
func (d *Decoder) Decode(data []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("decode target must be a non-nil pointer, got %T", out))
	}
	dst := rv.Elem()

	if dst.Type() == rawType {
		dst.SetBytes(append([]byte(nil), data...))
		return nil
	}

	tree, err := parse(data)
	if err != nil {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			GoType(dst.Type().String()).
			Detail("malformed document").
			Cause(err).
			Build()
	}
	return d.assign(dst, tree, nil)
}

func parse(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return d.DecodeUntypedMap()
	})
	return dec.DecodeInterfaceLoose()
}

func (d *Decoder) assign(dst reflect.Value, src any, path []string) error {
	t := dst.Type()

	if t == timeType || reflect.PointerTo(t).Implements(customType) || reflect.PointerTo(t).Implements(unmarshaler) {
		if tm, ok := src.(time.Time); ok && t == timeType {
			dst.Set(reflect.ValueOf(tm))
			return nil
		}
		return d.assignCustom(dst, src, path)
	}

	switch t.Kind() {
	case reflect.Interface:
		if src == nil {
			dst.SetZero()
			return nil
		}
		v := reflect.ValueOf(normalize(src))
		if !v.Type().AssignableTo(t) {
			return mismatch(dst, src, path)
		}
		dst.Set(v)
		return nil

	case reflect.Ptr:
		if src == nil {
			dst.SetZero()
			return nil
		}
		elem := reflect.New(t.Elem())
		if err := d.assign(elem.Elem(), src, path); err != nil {
			return err
		}
		dst.Set(elem)
		return nil

	case reflect.Bool:
		b, ok := src.(bool)
		if !ok {
			return mismatch(dst, src, path)
		}
		dst.SetBool(b)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		switch v := src.(type) {
		case int64:
			n = v
		case uint64:
			if v > 1<<63-1 {
				return overflow(dst, v, path)
			}
			n = int64(v)
		default:
			return mismatch(dst, src, path)
		}
		if dst.OverflowInt(n) {
			return overflow(dst, n, path)
		}
		dst.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var n uint64
		switch v := src.(type) {
		case uint64:
			n = v
		case int64:
			if v < 0 {
				return overflow(dst, v, path)
			}
			n = uint64(v)
		default:
			return mismatch(dst, src, path)
		}
		if dst.OverflowUint(n) {
			return overflow(dst, n, path)
		}
		dst.SetUint(n)
		return nil

	case reflect.Float32, reflect.Float64:
		var f float64
		switch v := src.(type) {
		case float64:
			f = v
		case int64:
			f = float64(v)
		case uint64:
			f = float64(v)
		default:
			return mismatch(dst, src, path)
		}
		dst.SetFloat(f)
		return nil

	case reflect.String:
		s, ok := src.(string)
		if !ok {
			return mismatch(dst, src, path)
		}
		if !utf8.ValidString(s) {
			return errors.InvalidUTF8(errors.PhaseDecode, path, []byte(s))
		}
		dst.SetString(s)
		return nil

	case reflect.Slice:
		return d.assignSlice(dst, src, path)

	case reflect.Array:
		if s, ok := src.(string); ok && t.Elem().Kind() == reflect.Uint8 && len(s) == t.Len() {
			reflect.Copy(dst, reflect.ValueOf([]byte(s)))
			return nil
		}
		items, ok := src.([]any)
		if !ok {
			return mismatch(dst, src, path)
		}
		if len(items) != t.Len() {
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Path(path...).
				GoType(t.String()).
				WireType("array").
				Detail("expected %d elements, got %d", t.Len(), len(items)).
				Build()
		}
		for i, item := range items {
			if err := d.assign(dst.Index(i), item, indexPath(path, i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		return d.assignMap(dst, src, path)

	case reflect.Struct:
		return d.assignStruct(dst, src, path)
	}

	return errors.New(errors.PhaseDecode, errors.KindUnsupported).
		Path(path...).
		GoType(t.String()).
		Detail("unsupported decode target").
		Build()
}

func (d *Decoder) assignSlice(dst reflect.Value, src any, path []string) error {
	t := dst.Type()
	if src == nil {
		dst.SetZero()
		return nil
	}

	if t.Elem().Kind() == reflect.Uint8 {
		// loose decoding surfaces bin payloads as strings
		if s, ok := src.(string); ok {
			b := reflect.MakeSlice(t, len(s), len(s))
			reflect.Copy(b, reflect.ValueOf([]byte(s)))
			dst.Set(b)
			return nil
		}
	}

	items, ok := src.([]any)
	if !ok {
		return mismatch(dst, src, path)
	}
	out := reflect.MakeSlice(t, len(items), len(items))
	for i, item := range items {
		if err := d.assign(out.Index(i), item, indexPath(path, i)); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}

func (d *Decoder) assignMap(dst reflect.Value, src any, path []string) error {
	t := dst.Type()
	if src == nil {
		dst.SetZero()
		return nil
	}
	m, ok := src.(map[any]any)
	if !ok {
		return mismatch(dst, src, path)
	}

	out := reflect.MakeMapWithSize(t, len(m))
	for k, v := range m {
		seg := keySegment(k)
		key := reflect.New(t.Key()).Elem()
		if err := d.assign(key, k, append(clonePath(path), seg)); err != nil {
			return err
		}
		val := reflect.New(t.Elem()).Elem()
		if err := d.assign(val, v, append(clonePath(path), seg)); err != nil {
			return err
		}
		out.SetMapIndex(key, val)
	}
	dst.Set(out)
	return nil
}

func (d *Decoder) assignStruct(dst reflect.Value, src any, path []string) error {
	t := dst.Type()
	if src == nil && t.NumField() == 0 {
		return nil
	}
	m, ok := src.(map[any]any)
	if !ok {
		return mismatch(dst, src, path)
	}

	info := getStructInfo(t)
	for k, v := range m {
		name, ok := k.(string)
		if !ok {
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Path(path...).
				GoType(t.String()).
				WireType(wireTypeOf(k)).
				Detail("struct field key must be a string").
				Build()
		}
		idx, found := info.lookup(name)
		if !found {
			if d.DisallowUnknownFields {
				return errors.FieldUnknown(errors.PhaseDecode, path, name)
			}
			continue
		}
		if err := d.assign(fieldByIndex(dst, idx), v, append(clonePath(path), name)); err != nil {
			return err
		}
	}
	return nil
}

// assignCustom hands a subtree to a type with its own msgpack decoding.
func (d *Decoder) assignCustom(dst reflect.Value, src any, path []string) error {
	data, err := msgpack.Marshal(src)
	if err != nil {
		return errors.Decode(path, dst.Type().String(), wireTypeOf(src), err)
	}
	if err := msgpack.Unmarshal(data, dst.Addr().Interface()); err != nil {
		return errors.Decode(path, dst.Type().String(), wireTypeOf(src), err)
	}
	return nil
}

// normalize turns untyped maps with string keys into map[string]any for
// interface targets.
func normalize(v any) any {
	switch x := v.(type) {
	case map[any]any:
		strKeys := make(map[string]any, len(x))
		for k, val := range x {
			s, ok := k.(string)
			if !ok {
				out := make(map[any]any, len(x))
				for k2, v2 := range x {
					out[k2] = normalize(v2)
				}
				return out
			}
			strKeys[s] = normalize(val)
		}
		return strKeys
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	}
	return v
}

func mismatch(dst reflect.Value, src any, path []string) *errors.Error {
	return errors.TypeMismatch(errors.PhaseDecode, clonePath(path), dst.Type().String(), wireTypeOf(src))
}

func overflow(dst reflect.Value, v any, path []string) *errors.Error {
	return errors.Overflow(errors.PhaseDecode, clonePath(path), v, dst.Type().String())
}

func wireTypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "bool"
	case int64:
		return "int"
	case uint64:
		return "uint"
	case float64:
		return "float"
	case string:
		return "string"
	case []any:
		return "array"
	case map[any]any:
		return "map"
	case time.Time:
		return "timestamp"
	}
	return fmt.Sprintf("%T", v)
}

func keySegment(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case int64:
		return "[" + strconv.FormatInt(v, 10) + "]"
	case uint64:
		return "[" + strconv.FormatUint(v, 10) + "]"
	}
	return fmt.Sprintf("[%v]", k)
}

func indexPath(path []string, i int) []string {
	return append(clonePath(path), "["+strconv.Itoa(i)+"]")
}

func clonePath(path []string) []string {
	return append(make([]string, 0, len(path)+1), path...)
}
