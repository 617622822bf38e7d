// Package cache is the UI-facing reactive query cache. It mirrors the local
// durable store, keyed by query identity, and notifies subscribers whenever a
// key changes so views can re-render. It is derived state only: the durable
// store and server responses always win during reconciliation.
package cache

import (
	"sync"

	"github.com/lenhattan2313/grocery-list-sub000/internal/model"
)

// Key identifies a cached query. The list collection and each single-list
// view are keyed independently so they can be updated without redundant
// refetches of each other.
type Key string

// KeyLists is the list-overview query.
const KeyLists Key = "lists"

// KeyList is the single-list query for the given id.
func KeyList(id string) Key { return Key("list:" + id) }

// Subscriber is notified with each changed key. Callbacks run synchronously
// with the change, so they must not block.
type Subscriber func(key Key)

// Cache holds query results by key. Stored values are replaced wholesale,
// never mutated in place, which is what makes snapshots exact.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]any
	subs    map[int]Subscriber
	nextID  int
}

func New() *Cache {
	return &Cache{
		entries: make(map[Key]any),
		subs:    make(map[int]Subscriber),
	}
}

// Subscribe registers a change callback and returns its unsubscribe function.
func (c *Cache) Subscribe(fn Subscriber) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cache) set(key Key, value any) {
	c.mu.Lock()
	c.entries[key] = value
	fns := c.subscribers()
	c.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

func (c *Cache) delete(key Key) {
	c.mu.Lock()
	_, existed := c.entries[key]
	delete(c.entries, key)
	var fns []Subscriber
	if existed {
		fns = c.subscribers()
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// subscribers must be called with the lock held.
func (c *Cache) subscribers() []Subscriber {
	fns := make([]Subscriber, 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	return fns
}

// Lists returns the cached list collection, if populated.
func (c *Cache) Lists() ([]model.ShoppingList, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[KeyLists]
	if !ok {
		return nil, false
	}
	lists, ok := v.([]model.ShoppingList)
	return lists, ok
}

// SetLists replaces the cached list collection.
func (c *Cache) SetLists(lists []model.ShoppingList) {
	c.set(KeyLists, lists)
}

// List returns the cached single-list entry for id, if populated.
func (c *Cache) List(id string) (*model.ShoppingList, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[KeyList(id)]
	if !ok {
		return nil, false
	}
	l, ok := v.(*model.ShoppingList)
	return l, ok
}

// SetList replaces the cached single-list entry and upserts the list into the
// cached collection, if the collection is populated. Both keys change under a
// single lock acquisition so concurrent upserts cannot lose each other's
// writes to the collection.
func (c *Cache) SetList(l *model.ShoppingList) {
	c.mu.Lock()
	c.entries[KeyList(l.ID)] = l
	changed := []Key{KeyList(l.ID)}

	if lists, ok := c.entries[KeyLists].([]model.ShoppingList); ok {
		next := make([]model.ShoppingList, 0, len(lists)+1)
		replaced := false
		for _, existing := range lists {
			if existing.ID == l.ID {
				next = append(next, *l)
				replaced = true
				continue
			}
			next = append(next, existing)
		}
		if !replaced {
			next = append([]model.ShoppingList{*l}, next...)
		}
		c.entries[KeyLists] = next
		changed = append(changed, KeyLists)
	}

	fns := c.subscribers()
	c.mu.Unlock()

	for _, fn := range fns {
		for _, key := range changed {
			fn(key)
		}
	}
}

// RemoveList drops the single-list entry and removes the list from the cached
// collection, atomically with respect to other list mutations.
func (c *Cache) RemoveList(id string) {
	c.mu.Lock()
	var changed []Key
	if _, ok := c.entries[KeyList(id)]; ok {
		delete(c.entries, KeyList(id))
		changed = append(changed, KeyList(id))
	}

	if lists, ok := c.entries[KeyLists].([]model.ShoppingList); ok {
		next := make([]model.ShoppingList, 0, len(lists))
		for _, existing := range lists {
			if existing.ID != id {
				next = append(next, existing)
			}
		}
		c.entries[KeyLists] = next
		changed = append(changed, KeyLists)
	}

	var fns []Subscriber
	if len(changed) > 0 {
		fns = c.subscribers()
	}
	c.mu.Unlock()

	for _, fn := range fns {
		for _, key := range changed {
			fn(key)
		}
	}
}

// ReplaceListID moves a list cached under a temporary id to its
// server-assigned id, used when a queued create is acknowledged.
func (c *Cache) ReplaceListID(tempID string, l *model.ShoppingList) {
	c.RemoveList(tempID)
	c.SetList(l)
}

// Invalidate drops the given keys, signaling subscribers to refetch.
func (c *Cache) Invalidate(keys ...Key) {
	for _, key := range keys {
		c.delete(key)
	}
}

// Clear drops every cached entry, notifying subscribers per key. Used on
// sign-out and full reset.
func (c *Cache) Clear() {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.delete(key)
	}
}

// Snapshot captures the current values of the given keys so a failed
// optimistic mutation can restore them exactly.
type Snapshot struct {
	cache  *Cache
	values map[Key]any
	absent map[Key]bool
}

// Snapshot records the state of keys before an optimistic mutation.
func (c *Cache) Snapshot(keys ...Key) *Snapshot {
	s := &Snapshot{
		cache:  c,
		values: make(map[Key]any, len(keys)),
		absent: make(map[Key]bool),
	}
	c.mu.RLock()
	for _, key := range keys {
		if v, ok := c.entries[key]; ok {
			s.values[key] = v
		} else {
			s.absent[key] = true
		}
	}
	c.mu.RUnlock()
	return s
}

// Restore puts every snapshotted key back to its pre-mutation state. Because
// cached values are replaced rather than mutated, the restored state is
// identical to the snapshot.
func (s *Snapshot) Restore() {
	for key, v := range s.values {
		s.cache.set(key, v)
	}
	for key := range s.absent {
		s.cache.delete(key)
	}
}
