package gojabridge

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync/atomic"
	"weak"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	gojaloop "github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/logiface"
)

// Context owns one script engine session, and the converter [Registry]
// used to move values across the boundary.
//
// All engine access is serialised onto a single goroutine. Methods are safe
// for concurrent use, and may also be called from converters and host
// functions already running on that goroutine, in which case they execute
// inline.
type Context struct {
	loop     *loop
	registry *Registry
	logger   *logiface.Logger[logiface.Event]
	closing  chan struct{}

	// handles interns the *Value of each script object, so repeated
	// conversions of one object yield one wrapper
	handles WeakIdentityCache[goja.Object, weak.Pointer[Value]]

	rethrowScript string
	// rethrow is compiled lazily, on the engine goroutine
	rethrow goja.Callable

	closed atomic.Bool
}

// New starts a new [Context]. It must be released using [Context.Close].
func New(opts ...Option) (*Context, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("gojabridge: %w", err)
	}

	registry := cfg.registry
	if registry == nil {
		registry = require.NewRegistry()
	}
	if cfg.console && cfg.logger != nil {
		registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&consolePrinter{
			logger:  cfg.logger,
			limiter: cfg.consoleLimiter,
		}))
	}

	c := &Context{
		loop:          newLoop(gojaloop.WithRegistry(registry), gojaloop.EnableConsole(cfg.console)),
		registry:      NewRegistry(),
		logger:        cfg.logger,
		closing:       make(chan struct{}),
		rethrowScript: cfg.rethrowScript,
	}

	if err := c.loop.start(func(vm *goja.Runtime) {
		if cfg.fieldNameMapper != nil {
			vm.SetFieldNameMapper(cfg.fieldNameMapper)
		}
	}); err != nil {
		return nil, err
	}

	if cfg.standardCoercions {
		PutStandardCoercions(c)
	}

	c.logger.Debug().
		Bool("console", cfg.console).
		Bool("standard_coercions", cfg.standardCoercions).
		Log("gojabridge: context started")

	return c, nil
}

// Close stops the engine. Pending futures fail with [ErrClosed], as does
// every subsequent operation. It returns [ErrCloseOnLoop] if called from the
// engine goroutine, and is otherwise idempotent.
func (c *Context) Close() error {
	if c.loop.onLoop() {
		return ErrCloseOnLoop
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.closing)
	c.loop.terminate()
	c.logger.Debug().Log("gojabridge: context closed")
	return nil
}

// Registry returns the converter registry of the context.
func (c *Context) Registry() *Registry { return c.registry }

// PutConverter is shorthand for [Registry.Put] on [Context.Registry].
func (c *Context) PutConverter(dir Direction, target reflect.Type, conv Converter) {
	c.registry.Put(dir, target, conv)
}

// Do runs fn on the engine goroutine, with direct access to the runtime,
// waiting for it to return. Thrown script exceptions are converted to
// [ScriptError].
//
// The runtime must not be retained, or used after fn returns.
func (c *Context) Do(fn func(vm *goja.Runtime) error) error {
	return c.exec(fn)
}

func (c *Context) exec(fn func(vm *goja.Runtime) error) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if c.loop.onLoop() {
		return c.run(c.loop.vm, fn)
	}

	done := make(chan error, 1)
	if !c.loop.submit(func(vm *goja.Runtime) {
		done <- c.run(vm, fn)
	}) {
		return ErrClosed
	}

	select {
	case err := <-done:
		return err
	case <-c.closing:
		select {
		case err := <-done:
			return err
		default:
			return ErrClosed
		}
	}
}

func (c *Context) run(vm *goja.Runtime, fn func(vm *goja.Runtime) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch r := r.(type) {
			case *goja.Exception:
				err = c.scriptError(r)
			case goja.Value:
				err = c.thrownError(r, "", nil)
			default:
				err = PanicError{Value: r}
			}
		}
	}()
	return c.engineError(fn(vm))
}

// Evaluate runs script source, then coerces its completion value to target.
// A nil target returns the raw value, see [Context.Coerce].
func (c *Context) Evaluate(src string, target reflect.Type) (result any, err error) {
	err = c.exec(func(vm *goja.Runtime) error {
		gv, err := vm.RunString(src)
		if err != nil {
			return err
		}
		result, err = c.coerce(target, c.fromScript(gv))
		return err
	})
	return
}

// EvaluateTo is the generic form of [Context.Evaluate].
func EvaluateTo[T any](c *Context, src string) (T, error) {
	result, err := c.Evaluate(src, reflect.TypeFor[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](result), nil
}

// EvaluateRaw runs script source, returning its completion value as a
// handle, without any coercion.
func (c *Context) EvaluateRaw(src string) (result *Value, err error) {
	err = c.exec(func(vm *goja.Runtime) error {
		gv, err := vm.RunString(src)
		if err != nil {
			return err
		}
		result = c.handle(gv)
		return nil
	})
	return
}

// Global returns the global object.
func (c *Context) Global() (result *Value, err error) {
	err = c.exec(func(vm *goja.Runtime) error {
		result = c.wrap(vm.GlobalObject())
		return nil
	})
	return
}

// SetGlobal converts v to script, see [Context.ToScript], and assigns it
// to a global variable.
func (c *Context) SetGlobal(name string, v any) error {
	return c.exec(func(vm *goja.Runtime) error {
		gv, err := c.toScript(vm, v)
		if err != nil {
			return err
		}
		return vm.Set(name, gv)
	})
}

// Require loads a module from the [require.Registry] configured using
// [WithRegistry].
func (c *Context) Require(name string) (result *Value, err error) {
	err = c.exec(func(vm *goja.Runtime) error {
		result = c.handle(require.Require(vm, name))
		return nil
	})
	return
}

// ToScript converts a host value to its raw script form, using the
// [ToScript] converters. Script objects are returned as *[Value], and
// primitives as their host equivalents.
func (c *Context) ToScript(v any) (result any, err error) {
	err = c.exec(func(vm *goja.Runtime) error {
		gv, err := c.toScript(vm, v)
		if err != nil {
			return err
		}
		result = c.fromScript(gv)
		return nil
	})
	return
}

// ToHost converts a raw script value to an unconstrained host value. It is
// equivalent to calling [Context.Coerce] with [AnyType].
func (c *Context) ToHost(v any) (any, error) {
	return c.Coerce(AnyType, v)
}

// Coerce converts a raw script value to target, using the [ToHost]
// converters, then falling back to the engine's own export rules. If target
// is nil or [AnyType], only the [AnyType] chain is consulted, and v is
// returned as is if every converter declines.
func (c *Context) Coerce(target reflect.Type, v any) (result any, err error) {
	err = c.exec(func(*goja.Runtime) error {
		result, err = c.coerce(target, v)
		return err
	})
	return
}

// CoerceTo is the generic form of [Context.Coerce].
func CoerceTo[T any](c *Context, v any) (T, error) {
	result, err := c.Coerce(reflect.TypeFor[T](), v)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](result), nil
}

// as converts a coercion result, which is either nil or assignable to T.
func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

// coerce must run on the engine goroutine.
func (c *Context) coerce(target reflect.Type, v any) (any, error) {
	if target == nil {
		target = AnyType
	}

	if x, ok := v.(*Value); ok && x.ctx != c {
		return nil, ErrForeignValue
	}

	result, ok, err := c.registry.resolve(c, ToHost, target, v)
	if err != nil {
		return nil, err
	}
	if ok {
		c.logger.Trace().
			Stringer("target", target).
			Str("value", fmt.Sprintf("%T", v)).
			Log("gojabridge: converter matched")
		if target == AnyType || result == nil {
			return result, nil
		}
		if reflect.TypeOf(result).AssignableTo(target) {
			return result, nil
		}
		v = result
	} else if target == AnyType {
		return v, nil
	}

	return c.defaultToHost(target, v)
}

// defaultToHost applies when no converter matched. Must run on the engine
// goroutine.
func (c *Context) defaultToHost(target reflect.Type, v any) (any, error) {
	if v == nil {
		return reflect.Zero(target).Interface(), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(target) {
		return v, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(target.Kind()) {
		return rv.Convert(target).Interface(), nil
	}
	if x, ok := v.(*big.Int); ok && isNumeric(target.Kind()) {
		switch {
		case x.IsInt64():
			return reflect.ValueOf(x.Int64()).Convert(target).Interface(), nil
		case x.IsUint64():
			return reflect.ValueOf(x.Uint64()).Convert(target).Interface(), nil
		}
		return nil, &ConversionError{Target: target, Value: v, Cause: errors.New("integer overflow")}
	}

	if handleTypes[target] {
		return nil, &ConversionError{Target: target, Value: v, Cause: ErrNotObject}
	}

	var gv goja.Value
	if x, ok := v.(*Value); ok {
		gv = x.val
	} else {
		gv = c.loop.vm.ToValue(v)
	}
	ptr := reflect.New(target)
	if err := c.loop.vm.ExportTo(gv, ptr.Interface()); err != nil {
		return nil, &ConversionError{Target: target, Value: v, Cause: err}
	}
	return ptr.Elem().Interface(), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// toScript must run on the engine goroutine.
func (c *Context) toScript(vm *goja.Runtime, v any) (goja.Value, error) {
	switch x := v.(type) {
	case nil:
		return goja.Null(), nil
	case goja.Value:
		return x, nil
	case *Value:
		if x.ctx != c {
			return nil, ErrForeignValue
		}
		return x.val, nil
	}

	result, ok, err := c.registry.resolve(c, ToScript, reflect.TypeOf(v), v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return vm.ToValue(v), nil
	}
	switch x := result.(type) {
	case nil:
		return goja.Null(), nil
	case goja.Value:
		return x, nil
	case *Value:
		if x.ctx != c {
			return nil, ErrForeignValue
		}
		return x.val, nil
	default:
		return vm.ToValue(x), nil
	}
}

func (c *Context) toScriptArgs(vm *goja.Runtime, args []any) ([]goja.Value, error) {
	out := make([]goja.Value, len(args))
	for i, arg := range args {
		gv, err := c.toScript(vm, arg)
		if err != nil {
			return nil, fmt.Errorf("gojabridge: argument %d: %w", i, err)
		}
		out[i] = gv
	}
	return out, nil
}

// fromScript returns the raw host form of a script value. Must run on the
// engine goroutine.
func (c *Context) fromScript(gv goja.Value) any {
	if gv == nil || goja.IsUndefined(gv) || goja.IsNull(gv) {
		return nil
	}
	switch x := gv.(type) {
	case *goja.Object:
		return c.wrap(x)
	case *goja.Symbol:
		return &Value{ctx: c, val: x}
	}
	return gv.Export()
}

// handle is like fromScript, but always returns a *Value.
func (c *Context) handle(gv goja.Value) *Value {
	if gv == nil {
		gv = goja.Undefined()
	}
	if obj, ok := gv.(*goja.Object); ok {
		return c.wrap(obj)
	}
	return &Value{ctx: c, val: gv}
}

// wrap returns the interned handle for obj.
func (c *Context) wrap(obj *goja.Object) *Value {
	if ref, ok := c.handles.Get(obj); ok {
		if v := ref.Value(); v != nil {
			return v
		}
	}
	v := &Value{ctx: c, val: obj, obj: obj}
	c.handles.Put(obj, weak.Make(v))
	return v
}

// normalizeRejection converts a promise rejection reason into an error, by
// throwing it from script. Host errors are returned unchanged. Must run on
// the engine goroutine.
func (c *Context) normalizeRejection(vm *goja.Runtime, reason goja.Value) error {
	if reason == nil {
		reason = goja.Undefined()
	}
	if err := hostError(reason); err != nil {
		return err
	}
	if err, ok := reason.Export().(error); ok {
		return err
	}

	if c.rethrow == nil {
		fn, err := vm.RunString(c.rethrowScript)
		if err != nil {
			return fmt.Errorf("gojabridge: rethrow script: %w", c.engineError(err))
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return fmt.Errorf("gojabridge: rethrow script: %w", ErrNotCallable)
		}
		c.rethrow = callable
	}

	_, err := c.rethrow(goja.Undefined(), reason)
	if err == nil {
		return &ScriptError{
			Thrown:  c.fromScript(reason),
			Message: reason.String(),
			Frame:   StackFrame{Script: "<eval>", Line: LineUnknown},
			Kind:    KindThrownValue,
		}
	}
	c.logger.Debug().Err(err).Log("gojabridge: normalised rejection")
	return c.engineError(err)
}
