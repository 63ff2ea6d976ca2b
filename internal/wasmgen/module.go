// Package wasmgen assembles small core WebAssembly modules. It covers the
// subset needed to hand-write ABI fixtures: function types, function
// imports, one memory, mutable globals, exports and function bodies.
package wasmgen

import (
	"fmt"
	"slices"
)

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

const (
	sectionCustom   = 0
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03

	funcTypeByte = 0x60

	nameSubsectionFunc = 1
)

type funcType struct {
	params  []ValType
	results []ValType
}

type importEntry struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	typeIdx uint32
	locals  []ValType
	body    *Code
}

type global struct {
	typ  ValType
	init int64
}

type exportEntry struct {
	name  string
	kind  byte
	index uint32
}

// Module is a module under construction. Imports must be declared before
// any function so that function indices stay stable.
type Module struct {
	memory  *[2]uint32
	types   []funcType
	imports []importEntry
	funcs   []function
	globals []global
	exports []exportEntry
	names   map[uint32]string
}

// New returns an empty module.
func New() *Module {
	return &Module{names: make(map[uint32]string)}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	for i, t := range m.types {
		if slices.Equal(t.params, params) && slices.Equal(t.results, results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic(fmt.Sprintf("wasmgen: import %s.%s declared after functions", module, name))
	}
	m.imports = append(m.imports, importEntry{module: module, name: name, typeIdx: m.typeIndex(params, results)})
	idx := uint32(len(m.imports) - 1)
	m.names[idx] = name
	return idx
}

// Func declares a function and returns its index. Locals are numbered
// after the parameters.
func (m *Module) Func(params, results, locals []ValType, body *Code) uint32 {
	m.funcs = append(m.funcs, function{typeIdx: m.typeIndex(params, results), locals: locals, body: body})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory declares the module memory with min pages and an optional max
// (0 means unbounded), exported as name when name is not empty.
func (m *Module) Memory(min, max uint32, name string) {
	m.memory = &[2]uint32{min, max}
	if name != "" {
		m.exports = append(m.exports, exportEntry{name: name, kind: kindMemory})
	}
}

// Global declares a mutable global and returns its index.
func (m *Module) Global(t ValType, init int64) uint32 {
	m.globals = append(m.globals, global{typ: t, init: init})
	return uint32(len(m.globals) - 1)
}

// Name sets the debug name of function idx, written to the "name" custom
// section.
func (m *Module) Name(idx uint32, name string) {
	m.names[idx] = name
}

// Export exports function idx as name. The first export of a function
// also becomes its debug name.
func (m *Module) Export(name string, idx uint32) {
	m.exports = append(m.exports, exportEntry{name: name, kind: kindFunc, index: idx})
	if _, ok := m.names[idx]; !ok {
		m.names[idx] = name
	}
}

// ExportGlobal exports global idx as name.
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, exportEntry{name: name, kind: kindGlobal, index: idx})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		items := make([][]byte, len(m.types))
		for i, t := range m.types {
			b := []byte{funcTypeByte}
			b = appendValTypes(b, t.params)
			items[i] = appendValTypes(b, t.results)
		}
		out = appendSection(out, sectionType, appendVec(nil, items))
	}

	if len(m.imports) > 0 {
		items := make([][]byte, len(m.imports))
		for i, imp := range m.imports {
			b := appendName(nil, imp.module)
			b = appendName(b, imp.name)
			b = append(b, kindFunc)
			items[i] = appendU32(b, imp.typeIdx)
		}
		out = appendSection(out, sectionImport, appendVec(nil, items))
	}

	if len(m.funcs) > 0 {
		items := make([][]byte, len(m.funcs))
		for i, f := range m.funcs {
			items[i] = appendU32(nil, f.typeIdx)
		}
		out = appendSection(out, sectionFunction, appendVec(nil, items))
	}

	if m.memory != nil {
		var b []byte
		if m.memory[1] == 0 {
			b = appendU32([]byte{0x00}, m.memory[0])
		} else {
			b = appendU32([]byte{0x01}, m.memory[0])
			b = appendU32(b, m.memory[1])
		}
		out = appendSection(out, sectionMemory, appendVec(nil, [][]byte{b}))
	}

	if len(m.globals) > 0 {
		items := make([][]byte, len(m.globals))
		for i, g := range m.globals {
			b := []byte{byte(g.typ), 0x01}
			b = append(b, constOp(g.typ))
			b = appendS64(b, g.init)
			items[i] = append(b, opEnd)
		}
		out = appendSection(out, sectionGlobal, appendVec(nil, items))
	}

	if len(m.exports) > 0 {
		items := make([][]byte, len(m.exports))
		for i, e := range m.exports {
			b := appendName(nil, e.name)
			b = append(b, e.kind)
			items[i] = appendU32(b, e.index)
		}
		out = appendSection(out, sectionExport, appendVec(nil, items))
	}

	if len(m.funcs) > 0 {
		items := make([][]byte, len(m.funcs))
		for i, f := range m.funcs {
			body := appendU32(nil, uint32(len(f.locals)))
			for _, l := range f.locals {
				body = appendU32(body, 1)
				body = append(body, byte(l))
			}
			body = append(body, f.body.buf...)
			body = append(body, opEnd)
			items[i] = append(appendU32(nil, uint32(len(body))), body...)
		}
		out = appendSection(out, sectionCode, appendVec(nil, items))
	}

	if len(m.names) > 0 {
		out = appendSection(out, sectionCustom, m.nameSection())
	}
	return out
}

// nameSection encodes the function name map, sorted by index.
func (m *Module) nameSection() []byte {
	idxs := make([]uint32, 0, len(m.names))
	for idx := range m.names {
		idxs = append(idxs, idx)
	}
	slices.Sort(idxs)

	items := make([][]byte, len(idxs))
	for i, idx := range idxs {
		items[i] = appendName(appendU32(nil, idx), m.names[idx])
	}
	funcNames := appendVec(nil, items)

	b := appendName(nil, "name")
	b = append(b, nameSubsectionFunc)
	b = appendU32(b, uint32(len(funcNames)))
	return append(b, funcNames...)
}

func constOp(t ValType) byte {
	switch t {
	case I32:
		return opI32Const
	case I64:
		return opI64Const
	}
	panic(fmt.Sprintf("wasmgen: no integer constant for value type 0x%x", byte(t)))
}

func appendValTypes(b []byte, ts []ValType) []byte {
	b = appendU32(b, uint32(len(ts)))
	for _, t := range ts {
		b = append(b, byte(t))
	}
	return b
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(payload)))
	return append(out, payload...)
}
