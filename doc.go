// Package fpbridge connects Go hosts and WebAssembly guests through a
// shared calling convention.
//
// Values cross the boundary as FatPtrs: a 64-bit word holding a pointer
// into guest linear memory and a byte length. Primitive values (integers,
// floats, bool, char) pass through as core wasm values; everything else is
// serialized with MessagePack into a guest buffer. Asynchronous calls return
// the FatPtr of an AsyncValue record that the other side fills in later.
//
// # Architecture Overview
//
//	fpbridge/          Root package with the Memory and Allocator interfaces
//	├── abi/           FatPtr, AsyncValue and primitive encodings, symbol names
//	├── codec/         MessagePack serialization with field-path errors
//	├── schema/        Protocol declarations and handler binding
//	├── guest/         Guest runtime: heap, marshalling, futures, task queue
//	├── host/          wazero embedding: imports, calls, async resolution
//	├── errors/        Structured error types
//	└── cmd/fprun/     Command line runner
//
// # Quick Start
//
// Declare the protocol once and share it between both sides:
//
//	p := schema.MustParse(`
//	    export add: func(a: u32, b: u32) -> u32;
//	    export fetch: async func(url: string) -> page;
//	    import log: func(msg: string);
//	`)
//
// On the host:
//
//	rt, err := host.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	err = rt.RegisterImports(p, map[string]any{
//	    "log": func(msg string) { fmt.Println(msg) },
//	})
//
//	mod, err := rt.Load(ctx, wasmBytes, p)
//	inst, err := mod.Instantiate(ctx)
//	defer inst.Close(ctx)
//
//	sum, err := inst.Call(ctx, "add", 40, 2) // uint32(42)
//
//	fut, err := inst.CallAsync(ctx, "fetch", "https://example.com")
//	var page Page
//	err = fut.AwaitInto(ctx, &page)
//
// # Ownership
//
// Whoever receives a buffer frees it. The host frees guest buffers by
// calling the guest's __fp_free after copying the bytes out; the guest
// frees host-written buffers the same way, since the host allocates them
// with __fp_malloc.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance methods
// serialize guest entry with a mutex. Import handlers run while that mutex
// is held and must not call back into their own instance.
package fpbridge
