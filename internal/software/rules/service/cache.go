package service

import (
	"sync"
	"time"

	"geofence-events/internal/domain/rule"
)

// MemoryCache is the in-process EvaluationCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]rule.CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]rule.CacheEntry)}
}

func (c *MemoryCache) Get(key string) (rule.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *MemoryCache) Put(key string, entry rule.CacheEntry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// PurgeOlderThan drops entries stamped before cutoff.
func (c *MemoryCache) PurgeOlderThan(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, entry := range c.entries {
		if entry.Timestamp.Before(cutoff) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
