package gojabridge

import (
	"iter"
	"strconv"

	"github.com/dop251/goja"
)

// List is a read-only view of a script object as a sequence, such as an
// array. It is live: every call reads the current state of the object, and
// nothing is cached.
type List struct {
	value *Value
}

// Value returns the underlying script object.
func (l *List) Value() *Value { return l.value }

// Len returns the "length" property, or 0 if it is absent, not an integer,
// or the context is closed. Lengths are capped at 2^32-1, as for arrays.
func (l *List) Len() int {
	var n int
	_ = l.value.ctx.exec(func(*goja.Runtime) error {
		n = listLen(l.value.obj)
		return nil
	})
	return n
}

// maxListLen is the largest valid array length.
const maxListLen = 1<<32 - 1

func listLen(obj *goja.Object) int {
	if obj == nil {
		return 0
	}
	v := obj.Get("length")
	if v == nil {
		return 0
	}
	var n int64
	switch length := v.Export().(type) {
	case int64:
		n = length
	case float64:
		if length > maxListLen {
			return maxListLen
		}
		if length != float64(int64(length)) {
			return 0
		}
		n = int64(length)
	}
	return int(max(0, min(n, maxListLen)))
}

// Get returns the element at index, coerced as for an unconstrained target,
// see [Context.ToHost].
func (l *List) Get(index int) (result any, err error) {
	c := l.value.ctx
	err = c.exec(func(*goja.Runtime) error {
		result, err = l.get(index)
		return err
	})
	return
}

// get must run on the engine goroutine.
func (l *List) get(index int) (any, error) {
	if l.value.obj == nil {
		return nil, ErrNotObject
	}
	c := l.value.ctx
	return c.coerce(AnyType, c.fromScript(l.value.obj.Get(strconv.Itoa(index))))
}

// All iterates over the elements, reading the length once. Iteration stops
// at the first error.
func (l *List) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		n := l.Len()
		for i := 0; i < n; i++ {
			v, err := l.Get(i)
			if err != nil {
				return
			}
			if !yield(i, v) {
				return
			}
		}
	}
}

// Slice copies the elements into a new slice.
func (l *List) Slice() (result []any, err error) {
	c := l.value.ctx
	err = c.exec(func(*goja.Runtime) error {
		n := listLen(l.value.obj)
		result = make([]any, n)
		for i := range result {
			if result[i], err = l.get(i); err != nil {
				return err
			}
		}
		return nil
	})
	return
}
