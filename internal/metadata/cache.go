package metadata

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CacheEntry represents a cached key-value entry
type CacheEntry struct {
	Value     string
	ExpiresAt time.Time
}

// KVCache is a TTL cache of string values with a background sweeper
type KVCache struct {
	mu       sync.RWMutex
	entries  map[string]*CacheEntry
	ttl      time.Duration
	now      func() time.Time
	hits     atomic.Int64
	misses   atomic.Int64
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewKVCache creates a new key-value cache
func NewKVCache(ttl time.Duration) *KVCache {
	cache := &KVCache{
		entries: make(map[string]*CacheEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Get retrieves a live value from cache
func (c *KVCache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists || c.now().After(entry.ExpiresAt) {
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return entry.Value, true
}

// Set stores a value in cache
func (c *KVCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &CacheEntry{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes a key from cache
func (c *KVCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// DeletePrefix removes all keys with given prefix
func (c *KVCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Clear removes all entries
func (c *KVCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
}

func (c *KVCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

// cleanup periodically removes expired entries
func (c *KVCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Calling it more than once is safe.
func (c *KVCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Stats returns cache statistics
func (c *KVCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expired := 0
	now := c.now()
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expired++
		}
	}

	return map[string]interface{}{
		"total_entries":   len(c.entries),
		"expired_entries": expired,
		"active_entries":  len(c.entries) - expired,
		"hits":            c.hits.Load(),
		"misses":          c.misses.Load(),
		"ttl_seconds":     c.ttl.Seconds(),
	}
}
