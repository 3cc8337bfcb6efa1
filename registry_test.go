package gojabridge

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constConverter(result any) Converter {
	return func(*Context, reflect.Type, any) (any, bool, error) {
		return result, true, nil
	}
}

func TestRegistry_newestFirst(t *testing.T) {
	r := NewRegistry()
	stringType := reflect.TypeFor[string]()

	r.Put(ToHost, stringType, constConverter("old"))
	r.Put(ToHost, stringType, func(_ *Context, _ reflect.Type, v any) (any, bool, error) {
		if v == "skip" {
			return nil, false, nil
		}
		return "new", true, nil
	})
	assert.Equal(t, 2, r.Len(ToHost, stringType))
	assert.Zero(t, r.Len(ToScript, stringType))

	result, ok, err := r.resolve(nil, ToHost, stringType, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", result)

	result, ok, err = r.resolve(nil, ToHost, stringType, "skip")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old", result)

	_, ok, err = r.resolve(nil, ToScript, stringType, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_errorsPropagate(t *testing.T) {
	r := NewRegistry()
	intType := reflect.TypeFor[int]()
	errBoom := errors.New("boom")

	var called bool
	r.Put(ToHost, intType, func(*Context, reflect.Type, any) (any, bool, error) {
		called = true
		return 1, true, nil
	})
	r.Put(ToHost, intType, func(*Context, reflect.Type, any) (any, bool, error) {
		return nil, false, errBoom
	})

	_, ok, err := r.resolve(nil, ToHost, intType, int64(1))
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, ok)
	assert.False(t, called)
}

func TestRegistry_anySlot(t *testing.T) {
	r := NewRegistry()
	intType := reflect.TypeFor[int]()

	var anyCalls int
	r.Put(ToScript, nil, func(_ *Context, target reflect.Type, v any) (any, bool, error) {
		anyCalls++
		return target.String(), true, nil
	})
	assert.Equal(t, 1, r.Len(ToScript, AnyType))

	// nominal chain is empty, so the any slot matches structurally
	result, ok, err := r.resolve(nil, ToScript, intType, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "int", result)

	// nominal chain wins
	r.Put(ToScript, intType, constConverter("nominal"))
	result, _, _ = r.resolve(nil, ToScript, intType, 1)
	assert.Equal(t, "nominal", result)
	assert.Equal(t, 1, anyCalls)

	// the any slot is only consulted once for unconstrained targets
	result, _, _ = r.resolve(nil, ToScript, nil, 1)
	assert.Equal(t, "interface {}", result)
	assert.Equal(t, 2, anyCalls)
}

func TestRegistry_Put_invalid(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Put(ToHost, nil, nil) })
	assert.Panics(t, func() { r.Put(Direction(7), nil, constConverter(1)) })
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "ToScript", ToScript.String())
	assert.Equal(t, "ToHost", ToHost.String())
	assert.Equal(t, "Direction(9)", Direction(9).String())
}

func TestContext_PutConverter(t *testing.T) {
	c := newTestEnv(t)
	stringType := reflect.TypeFor[string]()
	c.PutConverter(ToHost, stringType, constConverter("first"))
	c.PutConverter(ToHost, stringType, constConverter("second"))

	v, err := EvaluateTo[string](c, `'x'`)
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	errBoom := errors.New("boom")
	c.PutConverter(ToHost, reflect.TypeFor[int](), func(*Context, reflect.Type, any) (any, bool, error) {
		return nil, false, errBoom
	})
	_, err = EvaluateTo[int](c, `1`)
	assert.ErrorIs(t, err, errBoom)
}

type celsius float64

func TestPutFromObject(t *testing.T) {
	c := newTestEnv(t)
	PutFromObject(c, func(_ *Context, target reflect.Type, v any) (any, bool, error) {
		if x, ok := v.(celsius); ok {
			return map[string]any{"celsius": float64(x)}, true, nil
		}
		return nil, false, nil
	})

	require.NoError(t, c.SetGlobal("temp", celsius(21.5)))
	v, err := EvaluateTo[float64](c, `temp.celsius`)
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)
}

func TestPutToObject(t *testing.T) {
	c := newTestEnv(t)
	celsiusType := reflect.TypeFor[celsius]()
	PutToObject(c, func(_ *Context, target reflect.Type, v any) (any, bool, error) {
		if target != celsiusType {
			return nil, false, nil
		}
		x, ok := v.(*Value)
		if !ok {
			return nil, false, nil
		}
		raw, err := x.Get("celsius")
		if err != nil {
			return nil, false, err
		}
		f, err := x.Context().Coerce(reflect.TypeFor[float64](), raw)
		if err != nil {
			return nil, false, err
		}
		return celsius(f.(float64)), true, nil
	})

	v, err := EvaluateTo[celsius](c, `({celsius: 30})`)
	require.NoError(t, err)
	assert.Equal(t, celsius(30), v)
}
