package gojabridge

import (
	"fmt"
	"iter"
	"strconv"
	"sync"

	"github.com/dop251/goja"
)

// Entry is a key/value pair of a [Map].
type Entry struct {
	Key   string
	Value any
}

// Map is a read-only view of a script object as a string-keyed map. The
// object's own enumerable entries are snapshotted on first use, in the
// engine's iteration order, and the snapshot is used thereafter.
//
// Values are coerced as for an unconstrained target, see [Context.ToHost].
type Map struct {
	value   *Value
	entries []Entry
	index   map[string]int
	mu      sync.Mutex
	loaded  bool
}

// Value returns the underlying script object.
func (m *Map) Value() *Value { return m.value }

// Len returns the number of entries.
func (m *Map) Len() (int, error) {
	entries, _, err := m.load()
	return len(entries), err
}

// Get returns the value for key, and whether it was present.
func (m *Map) Get(key string) (any, bool, error) {
	entries, index, err := m.load()
	if err != nil {
		return nil, false, err
	}
	i, ok := index[key]
	if !ok {
		return nil, false, nil
	}
	return entries[i].Value, true, nil
}

// Keys returns the keys in iteration order.
func (m *Map) Keys() ([]string, error) {
	entries, _, err := m.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// Entries returns a copy of the entries in iteration order.
func (m *Map) Entries() ([]Entry, error) {
	entries, _, err := m.load()
	if err != nil {
		return nil, err
	}
	return append([]Entry(nil), entries...), nil
}

// All iterates over the entries. It yields nothing if the snapshot could
// not be taken.
func (m *Map) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		entries, _, err := m.load()
		if err != nil {
			return
		}
		for _, e := range entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// load returns the snapshot, taking it if necessary. A failed snapshot is
// retried by the next call.
func (m *Map) load() ([]Entry, map[string]int, error) {
	m.mu.Lock()
	if m.loaded {
		defer m.mu.Unlock()
		return m.entries, m.index, nil
	}
	m.mu.Unlock()

	var entries []Entry
	if err := m.value.ctx.exec(func(vm *goja.Runtime) (err error) {
		entries, err = m.snapshot(vm)
		return err
	}); err != nil {
		return nil, nil, err
	}

	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Key] = i
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// first snapshot wins
	if !m.loaded {
		m.entries, m.index, m.loaded = entries, index, true
	}
	return m.entries, m.index, nil
}

// snapshot must run on the engine goroutine.
func (m *Map) snapshot(vm *goja.Runtime) ([]Entry, error) {
	obj := m.value.obj
	if obj == nil {
		return nil, ErrNotObject
	}
	c := m.value.ctx

	object := vm.Get("Object").ToObject(vm)
	entriesFn, ok := goja.AssertFunction(object.Get("entries"))
	if !ok {
		return nil, fmt.Errorf("%w: Object.entries", ErrNotCallable)
	}
	out, err := entriesFn(object, obj)
	if err != nil {
		return nil, err
	}
	pairs := out.ToObject(vm)

	n := listLen(pairs)
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		pair := pairs.Get(strconv.Itoa(i)).ToObject(vm)
		key, err := c.coerce(AnyType, c.fromScript(pair.Get("0")))
		if err != nil {
			return nil, err
		}
		value, err := c.coerce(AnyType, c.fromScript(pair.Get("1")))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: mapKey(key), Value: value})
	}
	return entries, nil
}

func mapKey(key any) string {
	switch k := key.(type) {
	case nil:
		return ""
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}
