package notification

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/logging"
)

// New builds the configured notification store. redisClient is only needed for
// the redis store. Stores that hold resources implement io.Closer.
func New(cfg config.NotificationsConfig, redisClient *redis.Client, logger *logging.Logger) (Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "memory", "":
		return NewMemoryStore(logger), nil

	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis notification store requires a Redis client")
		}
		return NewRedisStreamStore(redisClient, cfg.RedisStream, cfg.MaxLen, logger), nil

	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)

	default:
		return nil, fmt.Errorf("unsupported notification store: %s (supported: memory, redis, sqlite)", cfg.Store)
	}
}
