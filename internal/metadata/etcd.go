package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/shardfleet/shardfleet/internal/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdManager implements Store using etcd. Reads go through a KVCache when
// one is configured; writes and deletes keep the cache coherent.
type EtcdManager struct {
	client *clientv3.Client
	cache  *KVCache
}

// NewEtcdManager creates a new etcd-backed store. A cacheTTL of zero disables
// read caching.
func NewEtcdManager(cfg config.EtcdConfig, cacheTTL time.Duration) (*EtcdManager, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return NewEtcdManagerWithClient(client, cacheTTL), nil
}

// NewEtcdManagerWithClient wraps an existing client
func NewEtcdManagerWithClient(client *clientv3.Client, cacheTTL time.Duration) *EtcdManager {
	m := &EtcdManager{client: client}
	if cacheTTL > 0 {
		m.cache = NewKVCache(cacheTTL)
	}
	return m
}

// Get retrieves a value by key
func (m *EtcdManager) Get(ctx context.Context, key string) (string, error) {
	if m.cache != nil {
		if cached, ok := m.cache.Get(key); ok {
			return cached, nil
		}
	}

	resp, err := m.client.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return "", ErrKeyNotFound
	}

	value := string(resp.Kvs[0].Value)
	if m.cache != nil {
		m.cache.Set(key, value)
	}
	return value, nil
}

// Put stores a key-value pair
func (m *EtcdManager) Put(ctx context.Context, key, value string) error {
	if _, err := m.client.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	if m.cache != nil {
		m.cache.Set(key, value)
	}
	return nil
}

// Delete removes a key from etcd
func (m *EtcdManager) Delete(ctx context.Context, key string) error {
	if _, err := m.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if m.cache != nil {
		m.cache.Delete(key)
	}
	return nil
}

// GetPrefix retrieves all keys with a given prefix. It always reads through to etcd.
func (m *EtcdManager) GetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := m.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get prefix: %w", err)
	}

	result := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		result[string(kv.Key)] = string(kv.Value)
	}
	return result, nil
}

// Ping checks that the cluster answers within ctx
func (m *EtcdManager) Ping(ctx context.Context) error {
	if _, err := m.client.Get(ctx, "health", clientv3.WithCountOnly()); err != nil {
		return fmt.Errorf("etcd unreachable: %w", err)
	}
	return nil
}

// CacheStats returns read cache statistics, or nil when caching is disabled
func (m *EtcdManager) CacheStats() map[string]interface{} {
	if m.cache == nil {
		return nil
	}
	return m.cache.Stats()
}

func (m *EtcdManager) Close() error {
	if m.cache != nil {
		m.cache.Stop()
	}
	return m.client.Close()
}
