package metadata

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shardfleet/shardfleet/internal/config"
)

// Test helper: check if Redis is available
func isRedisAvailable() bool {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return client.Ping(ctx).Err() == nil
}

func getRedisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379"
}

func TestEscapeGlob(t *testing.T) {
	tests := map[string]string{
		"/shardfleet/manifests/": "/shardfleet/manifests/",
		"a*b?c[d]":               `a\*b\?c\[d\]`,
		`back\slash`:             `back\\slash`,
	}
	for in, want := range tests {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	if _, err := NewRedisClient(config.RedisConfig{URL: "localhost:1"}); err == nil {
		t.Fatal("expected error for unreachable Redis")
	}
}

func TestRedisStore(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("Redis not available")
	}

	client, err := NewRedisClient(config.RedisConfig{URL: getRedisURL()})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	store := NewRedisStore(client)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	prefix := "/shardfleet-test/" + uuid.NewString() + "/"
	defer func() {
		values, _ := store.GetPrefix(ctx, prefix)
		for key := range values {
			_ = store.Delete(ctx, key)
		}
	}()

	if _, err := store.Get(ctx, prefix+"missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	if err := store.Put(ctx, prefix+"M1", `{"a":1}`); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	_ = store.Put(ctx, prefix+"M2", `{"a":2}`)

	value, err := store.Get(ctx, prefix+"M1")
	if err != nil || value != `{"a":1}` {
		t.Errorf("Get() = %q, %v", value, err)
	}

	values, err := store.GetPrefix(ctx, prefix)
	if err != nil {
		t.Fatalf("GetPrefix() error = %v", err)
	}
	if len(values) != 2 {
		t.Errorf("GetPrefix() = %v", values)
	}

	if err := store.Delete(ctx, prefix+"M1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, prefix+"M1"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}
