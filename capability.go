package gojabridge

import (
	"fmt"
	"slices"

	"github.com/dop251/goja"
)

// Capability declares a set of methods a script value must expose, to be
// used through an [Adapted] proxy.
type Capability struct {
	// Name identifies the capability in errors.
	Name string
	// Methods must all be functions on the value.
	Methods []string
	// Optional methods are bound if present.
	Optional []string
}

// PromiseCapability matches promises, and any other thenable.
var PromiseCapability = Capability{
	Name:     "Promise",
	Methods:  []string{"then"},
	Optional: []string{"catch", "finally"},
}

// Adapted is a script value bound to a [Capability]. Methods are resolved
// once, by [Value.AdaptTo], and always invoked with the value as receiver.
type Adapted struct {
	value      *Value
	capability Capability
	methods    map[string]goja.Callable
}

// AdaptTo binds the methods declared by capability, returning an error
// wrapping [ErrNotAdaptable] if the value is not an object, or any required
// method is not a function.
func (v *Value) AdaptTo(capability Capability) (result *Adapted, err error) {
	if v.obj == nil {
		return nil, fmt.Errorf("%w %s: %w", ErrNotAdaptable, capability.Name, ErrNotObject)
	}
	err = v.ctx.exec(func(*goja.Runtime) error {
		methods := make(map[string]goja.Callable, len(capability.Methods)+len(capability.Optional))
		for _, name := range capability.Methods {
			fn, ok := goja.AssertFunction(v.obj.Get(name))
			if !ok {
				return fmt.Errorf("%w %s: method %q: %w", ErrNotAdaptable, capability.Name, name, ErrNotCallable)
			}
			methods[name] = fn
		}
		for _, name := range capability.Optional {
			if fn, ok := goja.AssertFunction(v.obj.Get(name)); ok {
				methods[name] = fn
			}
		}
		result = &Adapted{
			value:      v,
			capability: capability,
			methods:    methods,
		}
		return nil
	})
	return
}

// Value returns the adapted value.
func (a *Adapted) Value() *Value { return a.value }

// Capability returns the capability the value was adapted to.
func (a *Adapted) Capability() Capability { return a.capability }

// Has returns true if method was bound, which is always the case for the
// capability's required methods.
func (a *Adapted) Has(method string) bool {
	_, ok := a.methods[method]
	return ok
}

// Invoke calls a bound method, returning the raw result. Methods not
// declared by the capability, and optional methods that were absent, return
// an error wrapping [ErrNotCallable].
func (a *Adapted) Invoke(method string, args ...any) (result any, err error) {
	fn, ok := a.methods[method]
	if !ok {
		if slices.Contains(a.capability.Methods, method) || slices.Contains(a.capability.Optional, method) {
			return nil, fmt.Errorf("%w: %s.%s not present", ErrNotCallable, a.capability.Name, method)
		}
		return nil, fmt.Errorf("%w: %s.%s not declared", ErrNotCallable, a.capability.Name, method)
	}
	c := a.value.ctx
	err = c.exec(func(vm *goja.Runtime) error {
		result, err = c.invoke(vm, fn, a.value.obj, args)
		return err
	})
	return
}
