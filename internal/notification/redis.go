package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shardfleet/shardfleet/internal/logging"
)

// RedisStreamStore appends notifications to a Redis stream, trimmed
// approximately to maxLen entries. The client is shared and not closed here.
type RedisStreamStore struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *logging.Logger
}

// NewRedisStreamStore creates a store writing to stream. maxLen <= 0 disables trimming.
func NewRedisStreamStore(client *redis.Client, stream string, maxLen int64, logger *logging.Logger) *RedisStreamStore {
	if logger == nil {
		logger = logging.Global()
	}
	return &RedisStreamStore{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "notification.redis"),
	}
}

// Append adds env as a stream entry carrying its routing fields and the full envelope
func (s *RedisStreamStore) Append(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		ID:     "*",
		Values: map[string]interface{}{
			"event_id":   env.EventID,
			"event_type": env.EventType,
			"source":     env.Source,
			"severity":   env.Severity,
			"tenant_id":  env.TenantID,
			"utc":        env.Utc.UTC().Format(time.RFC3339Nano),
			"envelope":   string(raw),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to Redis stream %s: %w", s.stream, err)
	}

	s.logger.Info("Stored event", "event_type", env.EventType, "source", env.Source)
	return nil
}

// Len returns the current stream length
func (s *RedisStreamStore) Len(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read Redis stream length: %w", err)
	}
	return n, nil
}

// Recent returns up to limit notifications, newest first
func (s *RedisStreamStore) Recent(ctx context.Context, limit int) ([]Envelope, error) {
	entries, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read Redis stream %s: %w", s.stream, err)
	}

	out := make([]Envelope, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["envelope"].(string)
		if !ok {
			s.logger.Warn("Skipping stream entry without envelope", "id", entry.ID)
			continue
		}
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("failed to decode notification %s: %w", entry.ID, err)
		}
		out = append(out, env)
	}
	return out, nil
}
