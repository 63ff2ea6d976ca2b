package host

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/schema"
)

// RegisterHost registers the exported methods of h as the imports of p.
// Method names are converted from PascalCase to kebab-case
// (FetchURL -> fetch-url). Methods that match no import are ignored; every
// import of p must be matched.
func (r *Runtime) RegisterHost(p *schema.Protocol, h any) error {
	rv := reflect.ValueOf(h)
	if !rv.IsValid() {
		return errors.InvalidInput(errors.PhaseHost, "nil host")
	}
	rt := rv.Type()

	handlers := make(map[string]any)
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() {
			continue
		}
		name := toKebabCase(method.Name)
		if _, ok := p.Import(name); !ok {
			continue
		}
		handlers[name] = rv.Method(i).Interface()
	}
	return r.RegisterImports(p, handlers)
}

// toKebabCase converts PascalCase to kebab-case.
// An acronym followed by a word splits before the word's capital:
// FetchURLData -> fetch-url-data. Adjacent acronyms stay one word:
// GetHTTPURL -> get-httpurl.
func toKebabCase(s string) string {
	runes := []rune(s)
	var out strings.Builder

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if !unicode.IsUpper(c) {
			out.WriteRune(c)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// Last uppercase before lowercase starts next word
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			out.WriteByte('-')
		}
		for j := i; j < end; j++ {
			out.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return out.String()
}
