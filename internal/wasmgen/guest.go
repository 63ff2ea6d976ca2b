package wasmgen

import "github.com/wippyai/fp-bridge/abi"

// Import is a function imported from the fp module.
type Import struct {
	Name    string
	Params  []ValType
	Results []ValType
}

// Guest is a module that already implements the guest half of the ABI:
// an exported memory, a bump allocator behind __fp_malloc, a counting
// __fp_free and __fp_guest_resolve_async_value. The counters are exported
// as the globals "allocs", "frees" and "resolved".
//
// Protocol functions are added with Func and Export like on any Module.
type Guest struct {
	*Module
	imports map[string]uint32

	HostResolve uint32
	Malloc      uint32
	Free        uint32
	Resolve     uint32

	Heap     uint32
	Allocs   uint32
	Frees    uint32
	Resolved uint32
}

// HeapBase is the first address the fixture allocator hands out.
const HeapBase = 1024

// NewGuest builds the ABI part of a guest. Extra imports come from the fp
// module and are addressed with ImportIndex.
func NewGuest(imports ...Import) *Guest {
	g := &Guest{Module: New(), imports: make(map[string]uint32)}
	g.HostResolve = g.Import(abi.ImportModule, abi.HostResolveName, []ValType{I64, I64}, nil)
	for _, imp := range imports {
		g.imports[imp.Name] = g.Import(abi.ImportModule, imp.Name, imp.Params, imp.Results)
	}

	g.Memory(4, 0, "memory")
	g.Heap = g.Global(I32, HeapBase)
	g.Allocs = g.Global(I32, 0)
	g.Frees = g.Global(I32, 0)
	g.Resolved = g.Global(I32, 0)
	g.ExportGlobal("allocs", g.Allocs)
	g.ExportGlobal("frees", g.Frees)
	g.ExportGlobal("resolved", g.Resolved)

	// __fp_malloc(n i32) -> i64; local 1 holds the block address.
	g.Malloc = g.Func([]ValType{I32}, []ValType{I64}, []ValType{I32}, Body().
		GlobalGet(g.Heap).LocalSet(1).
		LocalGet(1).LocalGet(0).I32Add().I32Const(abi.MallocAlignment-1).I32Add().
		I32Const(-abi.MallocAlignment).I32And().GlobalSet(g.Heap).
		GlobalGet(g.Allocs).I32Const(1).I32Add().GlobalSet(g.Allocs).
		FatPtr(1, 0))
	g.Export(abi.MallocName, g.Malloc)

	g.Free = g.Func([]ValType{I64}, nil, nil, Body().
		LocalGet(0).I64Eqz().If().Return().End().
		GlobalGet(g.Frees).I32Const(1).I32Add().GlobalSet(g.Frees))
	g.Export(abi.FreeName, g.Free)

	// Locals 2..5: async ptr, async len, result ptr, result len.
	g.Resolve = g.Func([]ValType{I64, I64}, nil, []ValType{I32, I32, I32, I32}, Body().
		SplitFatPtr(0, 2, 3).SplitFatPtr(1, 4, 5).
		LocalGet(2).LocalGet(4).I32Store(abi.PtrOffset).
		LocalGet(2).LocalGet(5).I32Store(abi.LenOffset).
		LocalGet(2).I32Const(int32(abi.StatusReady)).I32Store(abi.StatusOffset).
		GlobalGet(g.Resolved).I32Const(1).I32Add().GlobalSet(g.Resolved))
	g.Export(abi.GuestResolveName, g.Resolve)
	return g
}

// ImportIndex returns the function index of an extra import.
func (g *Guest) ImportIndex(name string) uint32 {
	idx, ok := g.imports[name]
	if !ok {
		panic("wasmgen: unknown import " + name)
	}
	return idx
}

// ExportGen exports fn under the generated symbol of protocol function name.
func (g *Guest) ExportGen(name string, fn uint32) {
	g.Export(abi.ExportName(name), fn)
}
