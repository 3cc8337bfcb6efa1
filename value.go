package gojabridge

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// Value is a handle to a script value, bound to the [Context] that produced
// it. Every script object is represented by exactly one *Value for as long
// as the host holds it, so handles may be compared using ==.
//
// A Value keeps its script object reachable. Handles to primitives are
// produced only by [Context.EvaluateRaw] and similar, and support no
// property or call operations.
type Value struct {
	ctx *Context
	val goja.Value
	// obj is nil for primitives
	obj *goja.Object
}

// Context returns the context the value belongs to.
func (v *Value) Context() *Context { return v.ctx }

// IsObject returns true if the value is a script object, including arrays
// and functions.
func (v *Value) IsObject() bool { return v.obj != nil }

// Raw returns the underlying engine value. It must only be used on the
// engine goroutine, e.g. within [Context.Do].
func (v *Value) Raw() goja.Value { return v.val }

// String returns the engine's string rendering of the value, or a
// placeholder if the context is closed.
func (v *Value) String() string {
	var s string
	if err := v.ctx.exec(func(*goja.Runtime) error {
		s = v.val.String()
		return nil
	}); err != nil {
		return fmt.Sprintf("<gojabridge.Value: %v>", err)
	}
	return s
}

// Export returns the raw host form of a primitive value. Objects are
// returned as the receiver.
func (v *Value) Export() (any, error) {
	if v.obj != nil {
		return v, nil
	}
	var result any
	err := v.ctx.exec(func(*goja.Runtime) error {
		result = v.ctx.fromScript(v.val)
		return nil
	})
	return result, err
}

// Get returns the raw value of a property.
func (v *Value) Get(key string) (result any, err error) {
	if v.obj == nil {
		return nil, ErrNotObject
	}
	err = v.ctx.exec(func(*goja.Runtime) error {
		result = v.ctx.fromScript(v.obj.Get(key))
		return nil
	})
	return
}

// GetIndex returns the raw value of an indexed element.
func (v *Value) GetIndex(index int) (any, error) {
	return v.Get(strconv.Itoa(index))
}

// Set converts value to script, see [Context.ToScript], then assigns it to
// a property.
func (v *Value) Set(key string, value any) error {
	if v.obj == nil {
		return ErrNotObject
	}
	return v.ctx.exec(func(vm *goja.Runtime) error {
		gv, err := v.ctx.toScript(vm, value)
		if err != nil {
			return err
		}
		return v.obj.Set(key, gv)
	})
}

// SetIndex is like [Value.Set], for an indexed element.
func (v *Value) SetIndex(index int, value any) error {
	return v.Set(strconv.Itoa(index), value)
}

// Call calls the value as a function, with an undefined receiver, returning
// the raw result.
func (v *Value) Call(args ...any) (any, error) {
	return v.call(nil, args)
}

// CallMethod calls the value as a function, with this as the receiver.
func (v *Value) CallMethod(this any, args ...any) (any, error) {
	return v.call(&this, args)
}

// CallProperty calls the function stored in a property, with the value as
// the receiver.
func (v *Value) CallProperty(key string, args ...any) (result any, err error) {
	if v.obj == nil {
		return nil, ErrNotObject
	}
	err = v.ctx.exec(func(vm *goja.Runtime) error {
		fn, ok := goja.AssertFunction(v.obj.Get(key))
		if !ok {
			return fmt.Errorf("%w: property %q", ErrNotCallable, key)
		}
		result, err = v.ctx.invoke(vm, fn, v.obj, args)
		return err
	})
	return
}

func (v *Value) call(this *any, args []any) (result any, err error) {
	err = v.ctx.exec(func(vm *goja.Runtime) error {
		fn, ok := goja.AssertFunction(v.val)
		if !ok {
			return ErrNotCallable
		}
		receiver := goja.Undefined()
		if this != nil {
			var err error
			if receiver, err = v.ctx.toScript(vm, *this); err != nil {
				return err
			}
		}
		result, err = v.ctx.invoke(vm, fn, receiver, args)
		return err
	})
	return
}

// invoke must run on the engine goroutine.
func (c *Context) invoke(vm *goja.Runtime, fn goja.Callable, this goja.Value, args []any) (any, error) {
	in, err := c.toScriptArgs(vm, args)
	if err != nil {
		return nil, err
	}
	out, err := fn(this, in...)
	if err != nil {
		return nil, err
	}
	return c.fromScript(out), nil
}

// Stringify returns the JSON encoding of the value, per JSON.stringify.
// Values JSON.stringify cannot encode, e.g. undefined or functions, return
// an empty string.
func (v *Value) Stringify() (result string, err error) {
	err = v.ctx.exec(func(vm *goja.Runtime) error {
		result, err = stringify(vm, v.val)
		return err
	})
	return
}

// stringify must run on the engine goroutine.
func stringify(vm *goja.Runtime, val goja.Value) (string, error) {
	json := vm.Get("JSON").ToObject(vm)
	fn, ok := goja.AssertFunction(json.Get("stringify"))
	if !ok {
		return "", fmt.Errorf("%w: JSON.stringify", ErrNotCallable)
	}
	out, err := fn(json, val)
	if err != nil {
		return "", err
	}
	if goja.IsUndefined(out) {
		return "", nil
	}
	return out.String(), nil
}

// parseJSON must run on the engine goroutine.
func parseJSON(vm *goja.Runtime, s string) (goja.Value, error) {
	json := vm.Get("JSON").ToObject(vm)
	fn, ok := goja.AssertFunction(json.Get("parse"))
	if !ok {
		return nil, fmt.Errorf("%w: JSON.parse", ErrNotCallable)
	}
	return fn(json, vm.ToValue(s))
}

// List returns a live, read-only list view of the value.
func (v *Value) List() *List { return &List{value: v} }

// Map returns a new read-only map view of the value. Each view snapshots the
// entries on first use.
func (v *Value) Map() *Map { return &Map{value: v} }
