package guest

import (
	stderrors "errors"
	"iter"
)

// Waker reschedules a suspended computation.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to Waker.
type WakerFunc func()

func (f WakerFunc) Wake() { f() }

// Context is passed to Future.Poll and carries the waker of the polling task.
type Context struct {
	waker Waker
}

// NewContext returns a poll context bound to w.
func NewContext(w Waker) *Context {
	return &Context{waker: w}
}

func (cx *Context) Waker() Waker { return cx.waker }

// Future is a computation that completes at some later poll. Poll returns
// ok == false while the computation is pending; a pending future has arranged
// for the context's waker to be called when it can make progress.
//
// A future must not be polled again after it reported completion.
type Future[T any] interface {
	Poll(cx *Context) (T, bool)
}

// FutureFunc adapts a poll function to Future.
type FutureFunc[T any] func(cx *Context) (T, bool)

func (f FutureFunc[T]) Poll(cx *Context) (T, bool) { return f(cx) }

// Result pairs a value with the error that replaced it.
type Result[T any] struct {
	Value T
	Err   error
}

type readyFuture[T any] struct{ v T }

func (f readyFuture[T]) Poll(*Context) (T, bool) { return f.v, true }

// Ready returns a future that is already complete with v.
func Ready[T any](v T) Future[T] {
	return readyFuture[T]{v: v}
}

type mapFuture[T, U any] struct {
	inner Future[T]
	fn    func(T) U
	out   U
	done  bool
}

func (f *mapFuture[T, U]) Poll(cx *Context) (U, bool) {
	if f.done {
		return f.out, true
	}
	v, ok := f.inner.Poll(cx)
	if !ok {
		var zero U
		return zero, false
	}
	f.out = f.fn(v)
	f.done = true
	f.inner = nil
	return f.out, true
}

// Map returns a future completing with fn applied to the result of f.
// fn runs once.
func Map[T, U any](f Future[T], fn func(T) U) Future[U] {
	return &mapFuture[T, U]{inner: f, fn: fn}
}

var errAbandoned = stderrors.New("guest: async body abandoned")

// Awaiter lets an Async body suspend on other futures.
type Awaiter struct {
	cx    *Context
	yield func(struct{}) bool
}

// Await suspends the calling Async body until f completes and returns its
// value.
func Await[T any](a *Awaiter, f Future[T]) T {
	for {
		if v, ok := f.Poll(a.cx); ok {
			return v
		}
		if !a.yield(struct{}{}) {
			panic(errAbandoned)
		}
	}
}

type asyncFuture[T any] struct {
	body   func(*Awaiter) T
	aw     *Awaiter
	next   func() (struct{}, bool)
	stop   func()
	result T
	done   bool
	gone   bool
}

// Async turns body into a future. body runs as a coroutine: it starts on
// the first poll and every Await inside it that finds its future pending
// returns control to the poller.
func Async[T any](body func(*Awaiter) T) Future[T] {
	return &asyncFuture[T]{body: body}
}

func (f *asyncFuture[T]) Poll(cx *Context) (T, bool) {
	if f.done {
		return f.result, true
	}
	if f.gone {
		var zero T
		return zero, false
	}
	if f.next == nil {
		f.aw = &Awaiter{}
		f.next, f.stop = iter.Pull(f.run)
	}
	f.aw.cx = cx

	if _, suspended := f.next(); suspended {
		var zero T
		return zero, false
	}
	f.stop()
	f.next, f.stop, f.aw, f.body = nil, nil, nil, nil
	return f.result, true
}

func (f *asyncFuture[T]) run(yield func(struct{}) bool) {
	defer func() {
		if r := recover(); r != nil && r != errAbandoned {
			panic(r)
		}
	}()
	f.aw.yield = yield
	f.result = f.body(f.aw)
	f.done = true
}

// Abandon stops a suspended Async future. The body unwinds at its pending
// Await, running its deferred calls, and the future never completes.
func Abandon[T any](f Future[T]) {
	af, ok := f.(*asyncFuture[T])
	if !ok || af.done {
		return
	}
	if af.stop != nil {
		af.stop()
	}
	af.next, af.stop, af.aw, af.body = nil, nil, nil, nil
	af.gone = true
}
