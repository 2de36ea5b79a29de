package rmcloud

import "sync"

// itemCache holds the most recently listed item set, keyed by ID. It is
// advisory: reads fall back to a fresh listing when the cache is invalid.
// A monotonic generation counter makes the invalidation contract observable;
// every replace and every invalidate bumps it.
type itemCache struct {
	mu    sync.Mutex
	items map[string]Item
	valid bool
	gen   uint64
}

func newItemCache() *itemCache {
	return &itemCache{}
}

// replace installs a full item set from a listing.
func (c *itemCache) replace(items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := make(map[string]Item, len(items))
	for _, item := range items {
		m[item.ID] = item
	}

	c.items = m
	c.valid = true
	c.gen++
}

// invalidate clears the cache. Mutations call this unconditionally rather
// than attempting an incremental update, forcing a re-fetch on next read.
func (c *itemCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.valid = false
	c.gen++
}

// get returns the cached item for id, if present.
func (c *itemCache) get(id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]

	return item, ok
}

// isValid reports whether the cache holds a listing.
func (c *itemCache) isValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.valid
}

// generation returns the monotonic generation counter.
func (c *itemCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gen
}
