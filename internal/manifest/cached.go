package manifest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shardfleet/shardfleet/internal/metadata"
)

// CachedLookup keeps found manifests in a TTL cache. Misses are not cached,
// so a manifest written after a miss is picked up on the next redelivery.
type CachedLookup struct {
	next  Lookup
	cache *metadata.KVCache
}

// NewCachedLookup wraps next with a cache of the given TTL
func NewCachedLookup(next Lookup, ttl time.Duration) *CachedLookup {
	return &CachedLookup{
		next:  next,
		cache: metadata.NewKVCache(ttl),
	}
}

func (c *CachedLookup) GetManifestJSON(ctx context.Context, manifestID string) (json.RawMessage, error) {
	if cached, ok := c.cache.Get(manifestID); ok {
		return json.RawMessage(cached), nil
	}

	doc, err := c.next.GetManifestJSON(ctx, manifestID)
	if err != nil {
		return nil, err
	}

	c.cache.Set(manifestID, string(doc))
	return doc, nil
}

// Stats returns cache statistics
func (c *CachedLookup) Stats() map[string]interface{} {
	return c.cache.Stats()
}

// Close stops the cache sweeper
func (c *CachedLookup) Close() {
	c.cache.Stop()
}
