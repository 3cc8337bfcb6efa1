package gojabridge

// AsyncCaller calls a script function, wrapping each result in a [Future],
// which coerces to T.
//
// Calls are issued synchronously. An exception thrown before the function
// returns is returned as an error, while a rejection of a returned promise
// fails the future.
type AsyncCaller[T any] struct {
	fn *Value
}

// NewAsyncCaller binds fn. It panics if fn is nil.
func NewAsyncCaller[T any](fn *Value) *AsyncCaller[T] {
	if fn == nil {
		panic("gojabridge: async caller requires a value")
	}
	return &AsyncCaller[T]{fn: fn}
}

// Value returns the bound value.
func (a *AsyncCaller[T]) Value() *Value { return a.fn }

// Call calls the bound function with an undefined receiver.
func (a *AsyncCaller[T]) Call(args ...any) (*Future[T], error) {
	return a.future(a.fn.Call(args...))
}

// CallProperty calls the function stored in a property of the bound value,
// with the bound value as receiver.
func (a *AsyncCaller[T]) CallProperty(key string, args ...any) (*Future[T], error) {
	return a.future(a.fn.CallProperty(key, args...))
}

// CallMethod calls the bound function with this as receiver.
func (a *AsyncCaller[T]) CallMethod(this any, args ...any) (*Future[T], error) {
	return a.future(a.fn.CallMethod(this, args...))
}

func (a *AsyncCaller[T]) future(raw any, err error) (*Future[T], error) {
	if err != nil {
		return nil, err
	}
	return NewFuture[T](a.fn.ctx, raw), nil
}
