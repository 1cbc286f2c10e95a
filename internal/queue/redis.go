package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shardfleet/shardfleet/internal/logging"
)

// RedisConfig represents Redis Streams configuration
type RedisConfig struct {
	URL      string // Redis URL (e.g., redis://localhost:6379)
	Password string // Optional password
	DB       int    // Database number (default: 0)
	Stream   string // Stream prefix (default: "shardfleet")
	Consumer string // Consumer name (default: hostname)
}

// RedisQueue implements Queue using Redis Streams with one consumer group per group name
type RedisQueue struct {
	client *redis.Client
	config RedisConfig
	retry  RetryPolicy
	logger *logging.Logger
	active map[string]bool
	mu     sync.Mutex
}

// newRedisQueue creates a new Redis Streams queue instance
func newRedisQueue(cfg RedisConfig, retry RetryPolicy, logger *logging.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if cfg.Stream == "" {
		cfg.Stream = "shardfleet"
	}
	if cfg.Consumer == "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "consumer-1"
		}
		cfg.Consumer = hostname
	}
	if logger == nil {
		logger = logging.Global()
	}

	return &RedisQueue{
		client: client,
		config: cfg,
		retry:  retry,
		logger: logger.With("component", "queue.redis"),
		active: make(map[string]bool),
	}, nil
}

// streamName converts a topic to a Redis stream name
func (q *RedisQueue) streamName(topic string) string {
	return fmt.Sprintf("%s:%s", q.config.Stream, topic)
}

// Publish appends a keyed entry to the topic stream
func (q *RedisQueue) Publish(ctx context.Context, topic, key string, value []byte) error {
	stream := q.streamName(topic)

	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"key":  key,
			"data": value,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis stream %s: %w", stream, err)
	}
	return nil
}

// Subscribe reads the topic stream through consumer group group. Entries left
// pending by an earlier run of this consumer are processed before new ones.
func (q *RedisQueue) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	stream := q.streamName(topic)
	k := groupKey(topic, group)

	q.mu.Lock()
	if q.active[k] {
		q.mu.Unlock()
		return fmt.Errorf("group %s already subscribed to topic: %s", group, topic)
	}
	q.active[k] = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.active, k)
		q.mu.Unlock()
	}()

	err := q.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	q.logger.Info("Subscribed to Redis stream", "stream", stream, "group", group, "consumer", q.config.Consumer)

	// "0" replays this consumer's pending entries, ">" reads new ones
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: q.config.Consumer,
			Streams:  []string{stream, cursor},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return nil
			}
			q.logger.Warn("Redis read failed", "stream", stream, "group", group, "error", err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		count := 0
		for _, s := range streams {
			for _, entry := range s.Messages {
				// the rest of the batch stays pending for the next consumer
				if ctx.Err() != nil {
					return nil
				}
				count++
				if err := q.process(ctx, stream, topic, group, entry, handler); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		}

		if cursor == "0" && count == 0 {
			cursor = ">"
		}
	}
}

func (q *RedisQueue) process(ctx context.Context, stream, topic, group string, entry redis.XMessage, handler Handler) error {
	key, _ := entry.Values["key"].(string)
	data, ok := entry.Values["data"].(string)
	if !ok {
		q.logger.Warn("Dropping stream entry without data", "stream", stream, "id", entry.ID)
		q.client.XAck(context.WithoutCancel(ctx), stream, group, entry.ID)
		return nil
	}

	msg := Message{Topic: topic, Key: key, Value: []byte(data)}
	if err := q.retry.deliver(ctx, q.logger, msg, handler, nil); err != nil {
		return fmt.Errorf("handler gave up on message in %s: %w", topic, err)
	}

	if err := q.client.XAck(context.WithoutCancel(ctx), stream, group, entry.ID).Err(); err != nil {
		q.logger.Error("Failed to ack stream entry", "stream", stream, "id", entry.ID, "error", err)
	}
	return nil
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
