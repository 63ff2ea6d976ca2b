package schema

import (
	"sort"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
)

// Param is a named function parameter.
type Param struct {
	Name string
	Type wit.Type
}

// Function describes one function crossing the boundary.
// A nil Result means the function returns nothing.
type Function struct {
	Result wit.Type
	Name   string
	Params []Param
	Async  bool
}

// Symbol returns the boundary symbol of f.
func (f *Function) Symbol() string {
	return abi.ExportName(f.Name)
}

// WasmParams returns the core parameter types of the boundary wrapper:
// primitives pass through, everything else is a FatPtr.
func (f *Function) WasmParams() []abi.WasmType {
	out := make([]abi.WasmType, len(f.Params))
	for i, p := range f.Params {
		out[i] = WasmType(p.Type)
	}
	return out
}

// WasmResults returns the core result types of the boundary wrapper.
// Async functions always return the FatPtr of their AsyncValue.
func (f *Function) WasmResults() []abi.WasmType {
	if f.Async {
		return []abi.WasmType{abi.FatPtrType}
	}
	if f.Result == nil {
		return nil
	}
	return []abi.WasmType{WasmType(f.Result)}
}

// HasResult reports whether the function produces a value.
func (f *Function) HasResult() bool {
	return f.Result != nil
}

// String renders f in protocol text syntax.
func (f *Function) String() string {
	s := f.Name + ": "
	if f.Async {
		s += "async "
	}
	s += "func("
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += p.Name + ": " + TypeString(p.Type)
	}
	s += ")"
	if f.Result != nil {
		s += " -> " + TypeString(f.Result)
	}
	return s
}

// Protocol is the set of functions a guest imports from and exports to its host.
type Protocol struct {
	Imports map[string]*Function
	Exports map[string]*Function
}

// NewProtocol creates an empty protocol.
func NewProtocol() *Protocol {
	return &Protocol{
		Imports: make(map[string]*Function),
		Exports: make(map[string]*Function),
	}
}

// AddImport declares a host-provided function.
func (p *Protocol) AddImport(fn *Function) error {
	return add(p.Imports, fn, "import")
}

// AddExport declares a guest-provided function.
func (p *Protocol) AddExport(fn *Function) error {
	return add(p.Exports, fn, "export")
}

func add(m map[string]*Function, fn *Function, what string) error {
	if fn == nil || fn.Name == "" {
		return errors.InvalidInput(errors.PhaseParse, what+" function needs a name")
	}
	if _, dup := m[fn.Name]; dup {
		return errors.InvalidInput(errors.PhaseParse, "duplicate "+what+" "+fn.Name)
	}
	m[fn.Name] = fn
	return nil
}

func (p *Protocol) Import(name string) (*Function, bool) {
	fn, ok := p.Imports[name]
	return fn, ok
}

func (p *Protocol) Export(name string) (*Function, bool) {
	fn, ok := p.Exports[name]
	return fn, ok
}

// HasAsync reports whether any function on either side is async. Only then
// do the resolution entry points have to exist.
func (p *Protocol) HasAsync() bool {
	for _, fn := range p.Imports {
		if fn.Async {
			return true
		}
	}
	for _, fn := range p.Exports {
		if fn.Async {
			return true
		}
	}
	return false
}

// ImportNames returns import names in sorted order.
func (p *Protocol) ImportNames() []string { return sortedKeys(p.Imports) }

// ExportNames returns export names in sorted order.
func (p *Protocol) ExportNames() []string { return sortedKeys(p.Exports) }

func sortedKeys(m map[string]*Function) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
