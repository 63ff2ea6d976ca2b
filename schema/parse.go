package schema

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/fp-bridge/errors"
)

var (
	funcPattern  = regexp.MustCompile(`^(?:(import|export)\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*(async\s+)?func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?\s*;?$`)
	identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
)

// Parse reads a protocol description, one function per line:
//
//	export add: func(a: u32, b: u32) -> u32;
//	export fetch: async func(req: request) -> response;
//	import log: func(msg: string);
//
// Lines without a direction are exports. Type names that are not builtins
// are named complex types. Blank lines and // comments are skipped.
func Parse(text string) (*Protocol, error) {
	p := NewProtocol()

	for lineNo, line := range strings.Split(text, "\n") {
		if idx := strings.Index(line, "//"); idx != -1 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		match := funcPattern.FindStringSubmatch(line)
		if match == nil {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Detail("line %d: expected function declaration, got %q", lineNo+1, line).
				Build()
		}

		fn, err := parseFunction(match[2], match[3] != "", match[4], match[5])
		if err != nil {
			return nil, errors.ParseFailed("function "+match[2], err)
		}

		if match[1] == "import" {
			err = p.AddImport(fn)
		} else {
			err = p.AddExport(fn)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(p.Imports) == 0 && len(p.Exports) == 0 {
		return nil, errors.InvalidInput(errors.PhaseParse, "no functions found in protocol text")
	}
	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Protocol {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseFunction parses a single declaration without direction keyword.
func ParseFunction(decl string) (*Function, error) {
	match := funcPattern.FindStringSubmatch(strings.TrimSpace(decl))
	if match == nil {
		return nil, errors.InvalidInput(errors.PhaseParse, "expected function declaration: "+decl)
	}
	return parseFunction(match[2], match[3] != "", match[4], match[5])
}

func parseFunction(name string, async bool, paramsStr, resultStr string) (*Function, error) {
	fn := &Function{Name: name, Async: async}

	for _, part := range splitParams(paramsStr) {
		pname, ptype, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseParse, "parameter needs a name: "+part)
		}
		t, err := ParseType(ptype)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "parse param type "+ptype)
		}
		fn.Params = append(fn.Params, Param{Name: strings.TrimSpace(pname), Type: t})
	}

	resultStr = strings.TrimSpace(resultStr)
	if resultStr != "" && resultStr != "()" {
		t, err := ParseType(resultStr)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "parse result type "+resultStr)
		}
		fn.Result = t
	}

	return fn, nil
}

// ParseType parses a type expression: builtins, list<T>, option<T>,
// tuple<...>, result<T, E> and named types.
func ParseType(s string) (wit.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.InvalidInput(errors.PhaseParse, "empty type")
	}

	open := strings.IndexByte(s, '<')
	if open == -1 {
		if s == "result" {
			return Result(nil, nil), nil
		}
		if t, err := wit.ParseType(s); err == nil {
			return t, nil
		}
		if !identPattern.MatchString(s) {
			return nil, errors.InvalidInput(errors.PhaseParse, "invalid type name "+s)
		}
		return Named(s), nil
	}
	if !strings.HasSuffix(s, ">") {
		return nil, errors.InvalidInput(errors.PhaseParse, "unbalanced type "+s)
	}

	head := strings.TrimSpace(s[:open])
	args := splitParams(s[open+1 : len(s)-1])
	types := make([]wit.Type, len(args))
	for i, a := range args {
		if a == "_" {
			continue
		}
		t, err := ParseType(a)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}

	switch head {
	case "list":
		if len(types) != 1 || types[0] == nil {
			return nil, errors.InvalidInput(errors.PhaseParse, "list takes one type: "+s)
		}
		return List(types[0]), nil
	case "option":
		if len(types) != 1 || types[0] == nil {
			return nil, errors.InvalidInput(errors.PhaseParse, "option takes one type: "+s)
		}
		return Option(types[0]), nil
	case "tuple":
		if len(types) == 0 {
			return nil, errors.InvalidInput(errors.PhaseParse, "tuple needs at least one type: "+s)
		}
		return Tuple(types...), nil
	case "result":
		switch len(types) {
		case 1:
			return Result(types[0], nil), nil
		case 2:
			return Result(types[0], types[1]), nil
		}
		return nil, errors.InvalidInput(errors.PhaseParse, "result takes one or two types: "+s)
	}
	return nil, errors.InvalidInput(errors.PhaseParse, "unknown generic type "+head)
}

// splitParams splits a comma separated list, handling nested brackets.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}
