package gojabridge

import (
	"fmt"
	"reflect"
	"sync"
)

// Direction selects which side of the boundary a coercion produces.
type Direction int

const (
	// ToScript converters produce script values from host values. They are
	// keyed by the type of the host value.
	ToScript Direction = iota
	// ToHost converters produce host values from raw script values. They
	// are keyed by the requested host type.
	ToHost
)

// String implements [fmt.Stringer].
func (d Direction) String() string {
	switch d {
	case ToScript:
		return "ToScript"
	case ToHost:
		return "ToHost"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// AnyType is the registry slot consulted for every coercion, after any
// converters registered for the nominal type. Converters registered here
// match structurally, e.g. on [reflect.Kind], and must decline anything else.
// It is also the target type of unconstrained host coercions.
var AnyType = reflect.TypeFor[any]()

// Converter attempts a single coercion. It returns ok false to decline,
// passing the value to the next converter in the chain. A non-nil error is
// a converter failure, and is returned to the caller of the coercion
// without trying further converters.
//
// For [ToScript], v is the host value, target is its type, and result may be
// a *[Value], a [goja.Value], or any host value the engine converts
// natively. For [ToHost], v is a raw script value (nil, bool, string, int64,
// float64, *big.Int, or *[Value]), and result must be assignable to target.
//
// Converters run on the engine goroutine, and may call back into the
// [Context], e.g. to coerce nested values.
type Converter func(c *Context, target reflect.Type, v any) (result any, ok bool, err error)

// Registry holds the converter chains of a [Context], per direction and
// target type. Chains are append-only, and the most recently added
// converter is tried first.
type Registry struct {
	chains [2]map[reflect.Type][]Converter
	mu     sync.RWMutex
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		chains: [2]map[reflect.Type][]Converter{
			ToScript: make(map[reflect.Type][]Converter),
			ToHost:   make(map[reflect.Type][]Converter),
		},
	}
}

// Put appends conv to the chain for (dir, target), ahead of every converter
// already present. A nil target is equivalent to [AnyType].
func (r *Registry) Put(dir Direction, target reflect.Type, conv Converter) {
	if conv == nil {
		panic("gojabridge: converter must not be nil")
	}
	if dir != ToScript && dir != ToHost {
		panic(fmt.Sprintf("gojabridge: invalid direction %d", int(dir)))
	}
	if target == nil {
		target = AnyType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// copy on write, so snapshots taken by chain remain valid
	prev := r.chains[dir][target]
	next := make([]Converter, len(prev), len(prev)+1)
	copy(next, prev)
	r.chains[dir][target] = append(next, conv)
}

// Len returns the number of converters in the chain for (dir, target).
func (r *Registry) Len(dir Direction, target reflect.Type) int {
	return len(r.chain(dir, target))
}

func (r *Registry) chain(dir Direction, target reflect.Type) []Converter {
	if target == nil {
		target = AnyType
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chains[dir][target]
}

// resolve runs the chain for target, newest first, then the [AnyType]
// chain. The first converter that does not decline wins.
func (r *Registry) resolve(c *Context, dir Direction, target reflect.Type, v any) (any, bool, error) {
	if target == nil {
		target = AnyType
	}
	if result, ok, err := runChain(c, r.chain(dir, target), target, v); ok || err != nil {
		return result, ok, err
	}
	if target == AnyType {
		return nil, false, nil
	}
	return runChain(c, r.chain(dir, AnyType), target, v)
}

func runChain(c *Context, chain []Converter, target reflect.Type, v any) (any, bool, error) {
	for i := len(chain) - 1; i >= 0; i-- {
		result, ok, err := chain[i](c, target, v)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return result, true, nil
		}
	}
	return nil, false, nil
}
