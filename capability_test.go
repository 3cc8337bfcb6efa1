package gojabridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var counterCapability = Capability{
	Name:     "Counter",
	Methods:  []string{"inc"},
	Optional: []string{"reset"},
}

func TestValue_AdaptTo(t *testing.T) {
	c := newTestEnv(t)
	counter := eval(t, c, `({
		n: 0,
		inc: function(by) { this.n += by; return this.n },
		reset: function() { this.n = 0 },
	})`)

	a, err := counter.AdaptTo(counterCapability)
	require.NoError(t, err)
	assert.Same(t, counter, a.Value())
	assert.Equal(t, "Counter", a.Capability().Name)
	assert.True(t, a.Has("inc"))
	assert.True(t, a.Has("reset"))

	v, err := a.Invoke("inc", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	v, err = a.Invoke("inc", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = a.Invoke("reset")
	require.NoError(t, err)
	assert.Nil(t, v)
	n, err := counter.Get("n")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = a.Invoke("toString")
	assert.ErrorIs(t, err, ErrNotCallable)
	assert.Contains(t, err.Error(), "not declared")
}

func TestValue_AdaptTo_optionalAbsent(t *testing.T) {
	c := newTestEnv(t)
	a, err := eval(t, c, `({inc: function() { return 1 }})`).AdaptTo(counterCapability)
	require.NoError(t, err)
	assert.False(t, a.Has("reset"))
	_, err = a.Invoke("reset")
	assert.ErrorIs(t, err, ErrNotCallable)
	assert.Contains(t, err.Error(), "not present")
}

func TestValue_AdaptTo_notAdaptable(t *testing.T) {
	c := newTestEnv(t)

	_, err := eval(t, c, `({inc: 1})`).AdaptTo(counterCapability)
	assert.ErrorIs(t, err, ErrNotAdaptable)
	assert.ErrorIs(t, err, ErrNotCallable)

	_, err = eval(t, c, `({})`).AdaptTo(counterCapability)
	assert.ErrorIs(t, err, ErrNotAdaptable)

	_, err = eval(t, c, `'primitive'`).AdaptTo(counterCapability)
	assert.ErrorIs(t, err, ErrNotAdaptable)
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestValue_AdaptTo_promise(t *testing.T) {
	c := newTestEnv(t)
	a, err := eval(t, c, `Promise.resolve(1)`).AdaptTo(PromiseCapability)
	require.NoError(t, err)
	assert.True(t, a.Has("catch"))
	assert.True(t, a.Has("finally"))

	// then returns a new promise, which may be awaited
	chained, err := a.Invoke("then", eval(t, c, `(function(v) { return v + 1 })`))
	require.NoError(t, err)
	v, err := NewFuture[int](c, chained).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
