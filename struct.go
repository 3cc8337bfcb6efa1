package gojabridge

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// structField is an exported field, named per its json tag.
type structField struct {
	name      string
	index     []int
	omitEmpty bool
}

// structFields lists the fields of t, flattening untagged embedded structs.
func structFields(t reflect.Type) []structField {
	var fields []structField
	var walk func(t reflect.Type, index []int)
	walk = func(t reflect.Type, index []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag := f.Tag.Get("json")
			if tag == "-" {
				continue
			}
			name, opts, _ := strings.Cut(tag, ",")
			idx := append(append([]int(nil), index...), i)
			if !f.IsExported() {
				continue
			}
			if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct && f.Type != timeType {
				walk(f.Type, idx)
				continue
			}
			if name == "" {
				name = f.Name
			}
			fields = append(fields, structField{
				name:      name,
				index:     idx,
				omitEmpty: strings.Contains(","+opts+",", ",omitempty,"),
			})
		}
	}
	walk(t, nil)
	return fields
}

// isEmptyValue matches the omitempty rules of encoding/json.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	default:
		return false
	}
}

func isStructType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}

// handleTypes are never built field by field.
var handleTypes = map[reflect.Type]bool{
	reflect.TypeFor[*Value]():   true,
	reflect.TypeFor[*Adapted](): true,
	listPtrType:                 true,
	mapPtrType:                  true,
}

// PutFromStruct converts struct values to a new plain script object, with
// one property per exported field, named per its json tag. Fields tagged
// "-" are skipped, and omitempty drops empty values. [time.Time] fields are
// epoch milliseconds, struct and pointer to struct fields are converted the
// same way, and other fields are converted to script.
//
// Pointers to structs are declined, leaving them to the engine, which
// exposes their methods to script.
func PutFromStruct(c *Context) {
	PutFromObject(c, func(c *Context, t reflect.Type, v any) (any, bool, error) {
		if t == nil || t.Kind() != reflect.Struct || t == timeType {
			return nil, false, nil
		}
		obj, err := c.structToScript(c.loop.vm, reflect.ValueOf(v))
		if err != nil {
			return nil, false, err
		}
		return obj, true, nil
	})
}

// structToScript must run on the engine goroutine.
func (c *Context) structToScript(vm *goja.Runtime, rv reflect.Value) (*goja.Object, error) {
	obj := vm.NewObject()
	for _, f := range structFields(rv.Type()) {
		fv := rv.FieldByIndex(f.index)
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		gv, err := c.fieldToScript(vm, fv)
		if err != nil {
			return nil, fmt.Errorf("gojabridge: field %s: %w", f.name, err)
		}
		if err := obj.Set(f.name, gv); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (c *Context) fieldToScript(vm *goja.Runtime, fv reflect.Value) (goja.Value, error) {
	t := fv.Type()
	switch {
	case t == timeType:
		return vm.ToValue(fv.Interface().(time.Time).UnixMilli()), nil
	case isStructType(t) && !t.Implements(protoMessageType) && !handleTypes[t]:
		if t.Kind() == reflect.Pointer {
			if fv.IsNil() {
				return goja.Null(), nil
			}
			fv = fv.Elem()
		}
		return c.structToScript(vm, fv)
	default:
		return c.toScript(vm, fv.Interface())
	}
}

// PutToStruct converts script objects to struct, and pointer to struct,
// targets. Each exported field, named per its json tag, is read from the
// object and coerced to the field's type. Absent, null and undefined
// properties leave the field zero. It declines primitives, values already
// assignable to the target, and the package's own handle types.
func PutToStruct(c *Context) {
	PutToObject(c, func(c *Context, target reflect.Type, v any) (any, bool, error) {
		if !isStructType(target) || handleTypes[target] {
			return nil, false, nil
		}
		x, ok := v.(*Value)
		if !ok || !x.IsObject() || reflect.TypeOf(v).AssignableTo(target) {
			return nil, false, nil
		}

		ptr := target.Kind() == reflect.Pointer
		structType := target
		if ptr {
			structType = target.Elem()
		}
		out := reflect.New(structType)
		rv := out.Elem()

		for _, f := range structFields(structType) {
			raw := c.fromScript(x.obj.Get(f.name))
			if raw == nil {
				continue
			}
			fv := rv.FieldByIndex(f.index)
			result, err := c.coerce(fv.Type(), raw)
			if err != nil {
				return nil, false, fmt.Errorf("gojabridge: field %s: %w", f.name, err)
			}
			if result != nil {
				fv.Set(reflect.ValueOf(result))
			}
		}

		if ptr {
			return out.Interface(), true, nil
		}
		return rv.Interface(), true, nil
	})
}
