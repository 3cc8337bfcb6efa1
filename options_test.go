package gojabridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_invalidOptions(t *testing.T) {
	_, err := New(WithRegistry(nil))
	assert.EqualError(t, err, "gojabridge: registry must not be nil")

	_, err = New(WithRethrowScript(""))
	assert.EqualError(t, err, "gojabridge: rethrow script must not be empty")
}

func TestResolveOptions_defaults(t *testing.T) {
	cfg, err := resolveOptions([]Option{nil})
	require.NoError(t, err)
	assert.True(t, cfg.console)
	assert.True(t, cfg.standardCoercions)
	assert.Equal(t, defaultRethrowScript, cfg.rethrowScript)
	assert.Nil(t, cfg.logger)
	assert.Nil(t, cfg.registry)
	assert.Nil(t, cfg.fieldNameMapper)
}

func TestWithRethrowScript(t *testing.T) {
	c := newTestEnv(t, WithRethrowScript(`(function(e) { throw new Error('wrapped: ' + e) })`))
	_, err := NewFuture[any](c, eval(t, c, `Promise.reject('boom')`)).Get(context.Background())
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindError, se.Kind)
	assert.Equal(t, "Error: wrapped: boom", se.Message)
}

func TestWithRethrowScript_notCallable(t *testing.T) {
	c := newTestEnv(t, WithRethrowScript(`42`))
	_, err := NewFuture[any](c, eval(t, c, `Promise.reject('boom')`)).Get(context.Background())
	assert.ErrorIs(t, err, ErrNotCallable)
}

func TestWithConsole(t *testing.T) {
	c := newTestEnv(t, WithConsole(false))
	kind, err := EvaluateTo[string](c, `typeof console`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", kind)

	c = newTestEnv(t)
	kind, err = EvaluateTo[string](c, `typeof console.log`)
	require.NoError(t, err)
	assert.Equal(t, "function", kind)
}

func TestWithStandardCoercions_disabled(t *testing.T) {
	type named struct {
		FirstName string `json:"firstName"`
	}
	c := newTestEnv(t, WithStandardCoercions(false), WithJSONFieldNames())
	assert.Zero(t, c.Registry().Len(ToHost, listPtrType))
	assert.Zero(t, c.Registry().Len(ToHost, AnyType))

	require.NoError(t, c.SetGlobal("n", named{FirstName: "Ada"}))
	name, err := EvaluateTo[string](c, `n.firstName`)
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	// exported without converters, via the field name mapper
	out, err := EvaluateTo[named](c, `({firstName: 'Grace'})`)
	require.NoError(t, err)
	assert.Equal(t, "Grace", out.FirstName)
}
