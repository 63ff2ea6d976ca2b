// Package guest is the guest half of the bridge: the allocator the host
// calls into, the marshaller, the AsyncValue futures and a single-threaded
// cooperative task scheduler.
//
// All state lives in a Runtime. Functions are bound to it from a schema:
//
//	rt := guest.New(guest.NewArena(1<<16), link)
//	rt.Export(add, func(a, b uint32) uint32 { return a + b })
//	rt.Export(fetch, func(aw *guest.Awaiter, url string) (Page, error) {
//	    fut, err := guest.CallImportAsync[Page](rt, "fetch-page", url)
//	    if err != nil {
//	        return Page{}, err
//	    }
//	    res := guest.Await(aw, fut)
//	    return res.Value, res.Err
//	})
//
// Invoke runs the boundary wrapper of an export. Async exports return the
// FatPtr of an AsyncValue at once; the handler runs as a task and, when it
// completes, the result is exported and handed to the host.
//
// When built for wasip1, the package exports __fp_malloc, __fp_free and
// __fp_guest_resolve_async_value and imports __fp_host_resolve_async_value,
// all bound to Default().
package guest
