package gojabridge

import (
	"runtime"
	"sync"
	"weak"
)

// identityKey compares by the identity of the referenced object, never by
// its contents. Two distinct objects with equal contents are distinct keys.
type identityKey[K any] struct {
	ptr weak.Pointer[K]
}

func identityOf[K any](key *K) identityKey[K] {
	return identityKey[K]{ptr: weak.Make(key)}
}

func (k identityKey[K]) alive() bool { return k.ptr.Value() != nil }

type identitySlot[K, V any] struct {
	key     identityKey[K]
	value   V
	cleanup runtime.Cleanup
}

// WeakIdentityCache maps objects, by identity, to values, without keeping
// the objects alive.
//
// Once a key becomes unreachable its entry is no longer visible to
// [WeakIdentityCache.Get] or [WeakIdentityCache.Len], and its slot is
// reclaimed by the next [WeakIdentityCache.Purge] or lookup miss. Values are
// held strongly, so a value that references its own key keeps the entry
// alive; store a [weak.Pointer] as the value in that case.
//
// The zero value is ready to use. It is safe for concurrent use, and never
// holds its lock while running caller code.
type WeakIdentityCache[K, V any] struct {
	index  map[identityKey[K]]uint64
	slots  map[uint64]*identitySlot[K, V]
	dead   []uint64
	nextID uint64
	mu     sync.Mutex
}

// Put associates value with key, replacing any existing value. A nil key is
// ignored.
func (c *WeakIdentityCache[K, V]) Put(key *K, value V) {
	if key == nil {
		return
	}
	ik := identityOf(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index == nil {
		c.index = make(map[identityKey[K]]uint64)
		c.slots = make(map[uint64]*identitySlot[K, V])
	}

	if id, ok := c.index[ik]; ok {
		c.slots[id].value = value
		return
	}

	c.nextID++
	id := c.nextID
	c.index[ik] = id
	c.slots[id] = &identitySlot[K, V]{
		key:     ik,
		value:   value,
		cleanup: runtime.AddCleanup(key, c.markDead, id),
	}
}

// Get returns the value associated with key, if key is present and
// reachable.
func (c *WeakIdentityCache[K, V]) Get(key *K) (value V, ok bool) {
	if key == nil {
		return
	}
	ik := identityOf(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	id, found := c.index[ik]
	if !found {
		c.sweepLocked()
		return
	}
	return c.slots[id].value, true
}

// Delete removes key, returning true if it was present.
func (c *WeakIdentityCache[K, V]) Delete(key *K) bool {
	if key == nil {
		return false
	}
	ik := identityOf(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.index[ik]
	if !ok {
		return false
	}
	c.slots[id].cleanup.Stop()
	c.removeLocked(id)
	return true
}

// Len returns the number of entries whose key is still reachable.
func (c *WeakIdentityCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, slot := range c.slots {
		if slot.key.alive() {
			n++
		}
	}
	return n
}

// Purge evicts every entry whose key has been collected, returning the
// number evicted.
func (c *WeakIdentityCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.sweepLocked()
	for id, slot := range c.slots {
		if !slot.key.alive() {
			c.removeLocked(id)
			n++
		}
	}
	return n
}

// markDead is the cleanup hook, run by the runtime after a key is collected.
func (c *WeakIdentityCache[K, V]) markDead(id uint64) {
	c.mu.Lock()
	c.dead = append(c.dead, id)
	c.mu.Unlock()
}

func (c *WeakIdentityCache[K, V]) sweepLocked() (n int) {
	for _, id := range c.dead {
		if _, ok := c.slots[id]; ok {
			c.removeLocked(id)
			n++
		}
	}
	c.dead = c.dead[:0]
	return n
}

func (c *WeakIdentityCache[K, V]) removeLocked(id uint64) {
	slot := c.slots[id]
	delete(c.slots, id)
	if c.index[slot.key] == id {
		delete(c.index, slot.key)
	}
}
