package queue

import (
	"fmt"
	"strings"

	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// NewQueue creates a new Queue instance based on configuration
// Default is Kafka if type is not specified
func NewQueue(cfg config.QueueConfig, logger *logging.Logger) (Queue, error) {
	if logger == nil {
		logger = logging.Global()
	}

	queueType := utils.QueueType(strings.ToLower(cfg.Type))
	if queueType == "" {
		queueType = utils.QueueTypeKafka
	}

	retry := RetryPolicy{
		InitialInterval: cfg.RetryInitialBackoff,
		MaxInterval:     cfg.RetryMaxBackoff,
	}

	switch queueType {
	case utils.QueueTypeKafka:
		return newKafkaQueue(KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			ClientID: cfg.KafkaClientID,
		}, retry, logger)

	case utils.QueueTypeNATS:
		return newNATSQueue(NATSConfig{
			URL:          cfg.URL,
			Username:     cfg.Username,
			Password:     cfg.Password,
			StreamPrefix: cfg.NATSStreamPrefix,
		}, retry, logger)

	case utils.QueueTypeRedis:
		return newRedisQueue(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			Consumer: cfg.RedisConsumer,
		}, retry, logger)

	case utils.QueueTypeMemory:
		return NewMemoryQueue(retry, logger), nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: kafka, nats, redis, memory)", queueType)
	}
}
