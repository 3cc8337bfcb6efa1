package gojabridge

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/dop251/goja"
)

var (
	listPtrType  = reflect.TypeFor[*List]()
	mapPtrType   = reflect.TypeFor[*Map]()
	anySliceType = reflect.TypeFor[[]any]()
)

// PutFromObject adds a [ToScript] converter to the [AnyType] slot, tried for
// every host value, after converters for its own type.
func PutFromObject(c *Context, conv Converter) {
	c.registry.Put(ToScript, AnyType, conv)
}

// PutToObject adds a [ToHost] converter to the [AnyType] slot, tried for
// every target type, after converters for the target itself.
func PutToObject(c *Context, conv Converter) {
	c.registry.Put(ToHost, AnyType, conv)
}

// PutUtilCoercions adds the collection converters: [PutFromMap],
// [PutFromList], [PutFromArray], [PutToMap] and [PutToList].
func PutUtilCoercions(c *Context) {
	PutFromMap(c)
	PutFromList(c)
	PutFromArray(c)
	PutToMap(c)
	PutToList(c)
}

// PutStandardCoercions adds [PutUtilCoercions], plus the date, struct and
// protobuf converters. It is applied by [New] unless disabled using
// [WithStandardCoercions].
func PutStandardCoercions(c *Context) {
	PutUtilCoercions(c)
	PutToDate(c)
	PutFromDate(c)
	PutFromStruct(c)
	PutToStruct(c)
	PutFromProto(c)
	PutToProto(c)
}

// PutFromList converts []any to a new script array, converting each
// element to script in order.
func PutFromList(c *Context) {
	c.registry.Put(ToScript, anySliceType, func(c *Context, _ reflect.Type, v any) (any, bool, error) {
		list, ok := v.([]any)
		if !ok {
			return nil, false, nil
		}
		vm := c.loop.vm
		arr := vm.NewArray()
		for i, elem := range list {
			if err := c.setIndex(vm, arr, i, elem); err != nil {
				return nil, false, err
			}
		}
		return arr, true, nil
	})
}

// PutFromArray converts any other slice or array to a new script array,
// converting each element to script in order. Nil slices become empty
// arrays.
func PutFromArray(c *Context) {
	PutFromObject(c, func(c *Context, _ reflect.Type, v any) (any, bool, error) {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, false, nil
		}
		vm := c.loop.vm
		arr := vm.NewArray()
		for i := 0; i < rv.Len(); i++ {
			if err := c.setIndex(vm, arr, i, rv.Index(i).Interface()); err != nil {
				return nil, false, err
			}
		}
		return arr, true, nil
	})
}

// PutFromMap converts maps to a new script object. Keys are converted to
// strings, and values are converted to script. Keys that stringify to the
// same property overwrite each other in iteration order, which is
// unspecified.
func PutFromMap(c *Context) {
	PutFromObject(c, func(c *Context, _ reflect.Type, v any) (any, bool, error) {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map {
			return nil, false, nil
		}
		if rv.IsNil() {
			return nil, true, nil
		}
		vm := c.loop.vm
		obj := vm.NewObject()
		iter := rv.MapRange()
		for iter.Next() {
			key := mapKey(iter.Key().Interface())
			gv, err := c.toScript(vm, iter.Value().Interface())
			if err != nil {
				return nil, false, fmt.Errorf("gojabridge: map key %q: %w", key, err)
			}
			if err := obj.Set(key, gv); err != nil {
				return nil, false, err
			}
		}
		return obj, true, nil
	})
}

// PutToList converts script objects to a live [List] view. It declines
// primitives. Views passed back to script convert to the underlying object.
func PutToList(c *Context) {
	c.registry.Put(ToHost, listPtrType, func(_ *Context, _ reflect.Type, v any) (any, bool, error) {
		if x, ok := v.(*Value); ok && x.IsObject() {
			return x.List(), true, nil
		}
		return nil, false, nil
	})
	c.registry.Put(ToScript, listPtrType, func(_ *Context, _ reflect.Type, v any) (any, bool, error) {
		if x, ok := v.(*List); ok && x != nil {
			return x.value, true, nil
		}
		return nil, true, nil
	})
}

// PutToMap converts script objects to a [Map] view. It declines
// primitives. Views passed back to script convert to the underlying object.
func PutToMap(c *Context) {
	c.registry.Put(ToHost, mapPtrType, func(_ *Context, _ reflect.Type, v any) (any, bool, error) {
		if x, ok := v.(*Value); ok && x.IsObject() {
			return x.Map(), true, nil
		}
		return nil, false, nil
	})
	c.registry.Put(ToScript, mapPtrType, func(_ *Context, _ reflect.Type, v any) (any, bool, error) {
		if x, ok := v.(*Map); ok && x != nil {
			return x.value, true, nil
		}
		return nil, true, nil
	})
}

// setIndex must run on the engine goroutine.
func (c *Context) setIndex(vm *goja.Runtime, arr *goja.Object, i int, elem any) error {
	gv, err := c.toScript(vm, elem)
	if err != nil {
		return fmt.Errorf("gojabridge: index %d: %w", i, err)
	}
	return arr.Set(strconv.Itoa(i), gv)
}
