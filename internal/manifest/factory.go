package manifest

import (
	"fmt"
	"strings"

	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/metadata"
)

// Stores carries the shared backends a lookup may be built on. Only the one
// named by the configuration needs to be set.
type Stores struct {
	Etcd   metadata.Store
	Redis  metadata.Store
	Memory metadata.Store
}

// New builds the configured manifest lookup, wrapped in a cache when CacheTTL > 0
func New(cfg config.ManifestsConfig, stores Stores) (Lookup, error) {
	var store metadata.Store

	switch strings.ToLower(cfg.Backend) {
	case "etcd":
		store = stores.Etcd
	case "redis":
		store = stores.Redis
	case "memory", "":
		store = stores.Memory
		if store == nil {
			store = metadata.NewMemoryStore()
		}
	default:
		return nil, fmt.Errorf("unsupported manifests backend: %s (supported: etcd, redis, memory)", cfg.Backend)
	}

	if store == nil {
		return nil, fmt.Errorf("manifests backend %s is not connected", cfg.Backend)
	}

	var lookup Lookup = NewStoreLookup(store, cfg.KeyPrefix)
	if cfg.CacheTTL > 0 {
		lookup = NewCachedLookup(lookup, cfg.CacheTTL)
	}
	return lookup, nil
}
