// Package host embeds guests with wazero and implements the host half of
// the bridge.
//
// A Runtime holds the import handlers. The first Load builds the import
// module ("fp" by default) from them: one function per generated import
// plus __fp_host_resolve_async_value. Each Instance owns a guest, its
// memory view, a waker table for pending guest futures and the goroutines
// of running async imports.
//
//	rt, _ := host.New(ctx)
//	_ = rt.RegisterImport(slowDouble, func(ctx context.Context, x uint32) (uint32, error) {
//	    select {
//	    case <-time.After(time.Second):
//	        return 2 * x, nil
//	    case <-ctx.Done():
//	        return 0, ctx.Err()
//	    }
//	})
//	mod, _ := rt.Load(ctx, wasm, protocol)
//	inst, _ := mod.Instantiate(ctx)
//
// Sync import handlers run on the calling goroutine and trap the guest when
// they fail. Async import handlers run on their own goroutine; the guest
// gets a pending AsyncValue immediately and the host resolves it through
// __fp_guest_resolve_async_value when the handler returns. A failing async
// handler resolves with the zero FatPtr.
//
// Async guest exports return a ModuleFuture. The guest resolves it during
// some later call into the instance; Await blocks until then.
package host
