package storageconfig

import "sync"

// MemCache is the in-process, whole-entry-replacement cache in front
// of the config store. It never merges partial updates into a cached
// entry: Put always replaces the whole value, and Invalidate always
// drops it outright.
type MemCache struct {
	mu      sync.RWMutex
	entries map[string]Config
}

// NewMemCache returns an empty cache.
func NewMemCache() *MemCache {
	return &MemCache{entries: map[string]Config{}}
}

// Get returns the cached config for id, if present.
func (c *MemCache) Get(id string) (Config, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.entries[id]
	return cfg, ok
}

// Put replaces the whole cached entry for cfg.ID.
func (c *MemCache) Put(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cfg.ID] = cfg
}

// Invalidate implements Cache.
func (c *MemCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}
