package gojabridge

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cacheKey struct {
	name string
	n    int64
}

func TestWeakIdentityCache_identityNotEquality(t *testing.T) {
	var cache WeakIdentityCache[cacheKey, string]
	k1 := &cacheKey{name: "a"}
	k2 := &cacheKey{name: "a"}

	cache.Put(k1, "one")
	v, ok := cache.Get(k1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	_, ok = cache.Get(k2)
	assert.False(t, ok)

	cache.Put(k2, "two")
	assert.Equal(t, 2, cache.Len())

	cache.Put(k1, "uno")
	v, _ = cache.Get(k1)
	assert.Equal(t, "uno", v)
	assert.Equal(t, 2, cache.Len())

	runtime.KeepAlive(k1)
	runtime.KeepAlive(k2)
}

func TestWeakIdentityCache_nilKey(t *testing.T) {
	var cache WeakIdentityCache[cacheKey, int]
	cache.Put(nil, 1)
	_, ok := cache.Get(nil)
	assert.False(t, ok)
	assert.False(t, cache.Delete(nil))
	assert.Zero(t, cache.Len())
}

func TestWeakIdentityCache_Delete(t *testing.T) {
	var cache WeakIdentityCache[cacheKey, int]
	k := &cacheKey{name: "k"}
	cache.Put(k, 1)
	assert.True(t, cache.Delete(k))
	assert.False(t, cache.Delete(k))
	_, ok := cache.Get(k)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
	runtime.KeepAlive(k)
}

//go:noinline
func putUnreachable(cache *WeakIdentityCache[cacheKey, string], name string) {
	cache.Put(&cacheKey{name: name}, name)
}

func TestWeakIdentityCache_collected(t *testing.T) {
	var cache WeakIdentityCache[cacheKey, string]
	held := &cacheKey{name: "held"}
	cache.Put(held, "held")
	putUnreachable(&cache, "gone")

	require.Eventually(t, func() bool {
		runtime.GC()
		return cache.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, cache.Purge())
	assert.Zero(t, cache.Purge())

	// equal contents, different identity
	_, ok := cache.Get(&cacheKey{name: "gone"})
	assert.False(t, ok)

	v, ok := cache.Get(held)
	require.True(t, ok)
	assert.Equal(t, "held", v)
	assert.Equal(t, 1, cache.Len())

	runtime.KeepAlive(held)
}

func TestWeakIdentityCache_concurrent(t *testing.T) {
	var cache WeakIdentityCache[cacheKey, int]
	keys := make([]*cacheKey, 64)
	for i := range keys {
		keys[i] = &cacheKey{n: int64(i)}
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, k := range keys {
				cache.Put(k, i)
				if v, ok := cache.Get(k); !ok || v != i {
					t.Errorf("key %d: got %d, %v", i, v, ok)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(keys), cache.Len())
	runtime.KeepAlive(keys)
}
