package lyrics

import (
	"strings"
	"sync"
)

// Cache keeps resolved lyrics for the life of the process.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Result
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Result)}
}

// CacheKey builds the key for a request: "song-artist", lowercased and trimmed.
func CacheKey(song, artist string) string {
	return strings.ToLower(strings.TrimSpace(song + "-" + artist))
}

// Get returns the cached result for key.
func (c *Cache) Get(key string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

// Set stores a result under key.
func (c *Cache) Set(key string, r *Result) {
	c.mu.Lock()
	c.entries[key] = r
	c.mu.Unlock()
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
