package gojabridge

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/dop251/goja"
)

// isoDateLayout is the format of Date.prototype.toISOString.
const isoDateLayout = "2006-01-02T15:04:05.000Z"

var timeType = reflect.TypeFor[time.Time]()

// InvalidDate is returned by the [PutToDate] converter for strings that
// could not be parsed.
var InvalidDate = time.UnixMilli(-1)

// PutToDate converts script values to [time.Time]. Numbers are epoch
// milliseconds, and Date objects convert directly. Anything else is
// stringified, then parsed using the engine's Date.parse, falling back to
// the ISO 8601 format used by Date.prototype.toISOString, in UTC. Strings
// neither accepts convert to [InvalidDate].
func PutToDate(c *Context) {
	c.registry.Put(ToHost, timeType, func(c *Context, _ reflect.Type, v any) (any, bool, error) {
		var s string
		switch x := v.(type) {
		case nil:
			return nil, false, nil
		case time.Time:
			return x, true, nil
		case int64:
			return time.UnixMilli(x), true, nil
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return InvalidDate, true, nil
			}
			return time.UnixMilli(int64(x)), true, nil
		case *big.Int:
			if !x.IsInt64() {
				return InvalidDate, true, nil
			}
			return time.UnixMilli(x.Int64()), true, nil
		case string:
			s = x
		case *Value:
			if t, ok := x.val.Export().(time.Time); ok {
				return t, true, nil
			}
			s = x.val.String()
		default:
			s = fmt.Sprint(x)
		}
		return parseDate(c.loop.vm, s), true, nil
	})
}

// parseDate must run on the engine goroutine.
func parseDate(vm *goja.Runtime, s string) time.Time {
	if ms, ok := engineParseDate(vm, s); ok {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(isoDateLayout, s); err == nil {
		return t
	}
	return InvalidDate
}

func engineParseDate(vm *goja.Runtime, s string) (int64, bool) {
	date := vm.Get("Date").ToObject(vm)
	parse, ok := goja.AssertFunction(date.Get("parse"))
	if !ok {
		return 0, false
	}
	out, err := parse(date, vm.ToValue(s))
	if err != nil {
		return 0, false
	}
	switch ms := out.Export().(type) {
	case int64:
		return ms, true
	case float64:
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return 0, false
		}
		return int64(ms), true
	}
	return 0, false
}

// PutFromDate converts [time.Time] to a script Date, with millisecond
// precision.
func PutFromDate(c *Context) {
	c.registry.Put(ToScript, timeType, func(c *Context, _ reflect.Type, v any) (any, bool, error) {
		t, ok := v.(time.Time)
		if !ok {
			return nil, false, nil
		}
		vm := c.loop.vm
		obj, err := vm.New(vm.Get("Date"), vm.ToValue(t.UnixMilli()))
		if err != nil {
			return nil, false, err
		}
		return obj, true, nil
	})
}
