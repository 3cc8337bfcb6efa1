package gojabridge

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

const (
	futurePending int32 = iota
	futureSettling
	futureResolved
	futureFailed
)

// Future is the single-assignment result of a script call, which may have
// returned a promise. It settles exactly once, either resolved with a raw
// value, or failed with an error. Later settlement attempts, e.g. by a
// thenable that invokes both of its callbacks, are ignored.
//
// Reads are repeatable: a failed future returns the same error from every
// get. Waiting never cancels the underlying call.
type Future[T any] struct {
	c     *Context
	done  chan struct{}
	value any
	err   error
	state atomic.Int32
}

// NewFuture wraps the raw result of a script call. Values other than a
// *[Value] resolve immediately, as do script values that do not adapt to
// [PromiseCapability]. Anything else is treated as a thenable, and settles
// via its callbacks, which run on the engine goroutine.
//
// A rejection with a host error, e.g. one returned by a host function
// called from script, fails the future with that error. Any other rejection
// reason is thrown from script, and the resulting [ScriptError] is stored.
func NewFuture[T any](c *Context, raw any) *Future[T] {
	f := &Future[T]{c: c, done: make(chan struct{})}

	v, ok := raw.(*Value)
	if !ok {
		f.resolve(raw)
		return f
	}

	promise, err := v.AdaptTo(PromiseCapability)
	if err != nil {
		if errors.Is(err, ErrNotAdaptable) {
			f.resolve(raw)
		} else {
			f.fail(err)
		}
		return f
	}

	if err := c.exec(func(vm *goja.Runtime) error {
		onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			defer f.recoverPanic()
			f.resolve(c.fromScript(call.Argument(0)))
			return goja.Undefined()
		})
		onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			defer f.recoverPanic()
			f.fail(c.normalizeRejection(vm, call.Argument(0)))
			return goja.Undefined()
		})
		_, err := promise.Invoke("then", onFulfilled, onRejected)
		return err
	}); err != nil {
		f.fail(err)
	}

	return f
}

func (f *Future[T]) recoverPanic() {
	if r := recover(); r != nil {
		f.fail(PanicError{Value: r})
	}
}

func (f *Future[T]) resolve(value any) {
	if !f.state.CompareAndSwap(futurePending, futureSettling) {
		return
	}
	f.value = value
	f.state.Store(futureResolved)
	close(f.done)
	f.c.logger.Debug().
		Str("value", typeName(value)).
		Log("gojabridge: future resolved")
}

func (f *Future[T]) fail(err error) {
	if !f.state.CompareAndSwap(futurePending, futureSettling) {
		return
	}
	f.err = err
	f.state.Store(futureFailed)
	close(f.done)
	f.c.logger.Debug().
		Err(err).
		Log("gojabridge: future failed")
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// Done returns true if the future has settled, without waiting.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles, returning nil, regardless of how
// it settled. It otherwise returns ctx.Err(), [ErrClosed] if the context
// closes first, or [ErrAwaitOnLoop] if called on the engine goroutine while
// still pending.
func (f *Future[T]) Await(ctx context.Context) error {
	if f.Done() {
		return nil
	}
	if f.c.loop.onLoop() {
		return ErrAwaitOnLoop
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.c.closing:
		if f.Done() {
			return nil
		}
		return ErrClosed
	}
}

// TryAwait waits up to timeout for the future to settle, returning true if
// it did. A non-positive timeout polls. On the engine goroutine it always
// polls, since nothing can settle the future while that goroutine waits.
func (f *Future[T]) TryAwait(timeout time.Duration) bool {
	if f.Done() {
		return true
	}
	if timeout <= 0 || f.c.loop.onLoop() {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return true
	case <-timer.C:
		return f.Done()
	case <-f.c.closing:
		return f.Done()
	}
}

// Get waits for the future to settle, then returns the resolved value
// coerced to T, or the failure.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	if err := f.Await(ctx); err != nil {
		var zero T
		return zero, err
	}
	return f.get()
}

// GetType is like [Future.Get], but coerces to target instead of T.
func (f *Future[T]) GetType(ctx context.Context, target reflect.Type) (any, error) {
	if err := f.Await(ctx); err != nil {
		return nil, err
	}
	return f.getType(target)
}

// GetAs is the generic form of [Future.GetType].
func GetAs[U, T any](ctx context.Context, f *Future[T]) (U, error) {
	result, err := f.GetType(ctx, reflect.TypeFor[U]())
	if err != nil {
		var zero U
		return zero, err
	}
	return as[U](result), nil
}

// TryGet is like [Future.Get], but returns [ErrTimeout] immediately if the
// future is pending.
func (f *Future[T]) TryGet() (T, error) {
	if !f.Done() {
		var zero T
		return zero, ErrTimeout
	}
	return f.get()
}

// TryGetTimeout is like [Future.Get], but returns [ErrTimeout] if the future
// is still pending after timeout.
func (f *Future[T]) TryGetTimeout(timeout time.Duration) (T, error) {
	if !f.TryAwait(timeout) {
		var zero T
		if f.c.closed.Load() {
			return zero, ErrClosed
		}
		return zero, ErrTimeout
	}
	return f.get()
}

// Join waits for the future to settle, returning only the failure, if any.
func (f *Future[T]) Join(ctx context.Context) error {
	_, err := f.Get(ctx)
	return err
}

func (f *Future[T]) get() (T, error) {
	result, err := f.getType(reflect.TypeFor[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](result), nil
}

// getType must only be called once settled.
func (f *Future[T]) getType(target reflect.Type) (any, error) {
	if f.state.Load() == futureFailed {
		return nil, f.err
	}
	result, err := f.c.Coerce(target, f.value)
	if errors.Is(err, ErrClosed) {
		if result, ok := settledHostValue(target, f.value); ok {
			return result, nil
		}
	}
	return result, err
}

// settledHostValue converts values that need no engine, for futures read
// after the context closed.
func settledHostValue(target reflect.Type, v any) (any, bool) {
	if target == nil {
		target = AnyType
	}
	if v == nil {
		return reflect.Zero(target).Interface(), true
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(target):
		return v, true
	case isNumeric(rv.Kind()) && isNumeric(target.Kind()):
		return rv.Convert(target).Interface(), true
	}
	return nil, false
}
