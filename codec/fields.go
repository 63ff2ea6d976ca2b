package codec

import (
	"reflect"
	"strings"
	"sync"
)

// structInfo maps wire field names to Go field index paths.
type structInfo struct {
	byName map[string][]int
	folded map[string][]int
}

var structCache sync.Map // reflect.Type -> *structInfo

func getStructInfo(t reflect.Type) *structInfo {
	if cached, ok := structCache.Load(t); ok {
		return cached.(*structInfo)
	}
	info := &structInfo{
		byName: make(map[string][]int),
		folded: make(map[string][]int),
	}
	collectFields(info, t, nil)
	actual, _ := structCache.LoadOrStore(t, info)
	return actual.(*structInfo)
}

func collectFields(info *structInfo, t reflect.Type, index []int) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, skip := fieldName(f)
		if skip {
			continue
		}

		idx := append(append([]int{}, index...), i)

		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if f.Anonymous && name == "" && ft.Kind() == reflect.Struct {
			collectFields(info, ft, idx)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		// outer fields shadow embedded ones
		if _, exists := info.byName[name]; !exists {
			info.byName[name] = idx
		}
		lower := strings.ToLower(name)
		if _, exists := info.folded[lower]; !exists {
			info.folded[lower] = idx
		}
	}
}

// fieldName returns the tag name of f, or "" when untagged.
func fieldName(f reflect.StructField) (name string, skip bool) {
	for _, key := range [...]string{"msgpack", "json"} {
		tag, ok := f.Tag.Lookup(key)
		if !ok {
			continue
		}
		if tag == "-" {
			return "", true
		}
		name, _, _ = strings.Cut(tag, ",")
		if name != "" {
			return name, false
		}
	}
	return "", false
}

func (s *structInfo) lookup(name string) ([]int, bool) {
	if idx, ok := s.byName[name]; ok {
		return idx, true
	}
	idx, ok := s.folded[strings.ToLower(name)]
	return idx, ok
}

// fieldByIndex walks idx, allocating nil embedded pointers on the way.
func fieldByIndex(v reflect.Value, idx []int) reflect.Value {
	for i, x := range idx {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
