package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shardfleet/shardfleet/internal/logging"
)

// KafkaConfig represents Apache Kafka configuration
type KafkaConfig struct {
	Brokers       []string      // Kafka broker addresses
	ClientID      string        // Client id reported to brokers (default: "shardfleet")
	BatchTimeout  time.Duration // Producer batch timeout (default: 10ms)
	RequiredAcks  int           // Required acks: 0=none, 1=leader, -1=all (default: -1)
	MaxAttempts   int           // Producer write attempts (default: 3)
	CommitRetries int           // Consumer commit retries (default: 3)
	RetryBackoff  time.Duration // Backoff between commit retries and fetch errors (default: 500ms)
}

// KafkaQueue implements Queue using Apache Kafka. Messages are written with
// their key and the hash balancer, so equal keys land on the same partition.
type KafkaQueue struct {
	config  KafkaConfig
	retry   RetryPolicy
	logger  *logging.Logger
	writers map[string]*kafka.Writer
	readers map[string]*kafka.Reader
	closed  bool
	mu      sync.Mutex
}

// newKafkaQueue creates a new Kafka queue instance
func newKafkaQueue(cfg KafkaConfig, retry RetryPolicy, logger *logging.Logger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "shardfleet"
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafka.RequireAll)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CommitRetries == 0 {
		cfg.CommitRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	return &KafkaQueue{
		config:  cfg,
		retry:   retry,
		logger:  logger.With("component", "queue.kafka"),
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
	}, nil
}

// getOrCreateWriter returns existing writer or creates a new one for the topic
func (q *KafkaQueue) getOrCreateWriter(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if writer, exists := q.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(q.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           q.config.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(q.config.RequiredAcks),
		MaxAttempts:            q.config.MaxAttempts,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			ClientID: q.config.ClientID,
		},
	}

	q.writers[topic] = writer
	return writer
}

// Publish writes a keyed message to a Kafka topic
func (q *KafkaQueue) Publish(ctx context.Context, topic, key string, value []byte) error {
	writer := q.getOrCreateWriter(topic)

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", topic, err)
	}
	return nil
}

func (q *KafkaQueue) newReader(topic, group string) (*kafka.Reader, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	readerKey := groupKey(topic, group)
	if _, exists := q.readers[readerKey]; exists {
		return nil, fmt.Errorf("group %s already subscribed to topic: %s", group, topic)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           q.config.Brokers,
		GroupID:           group,
		Topic:             topic,
		MinBytes:          1,
		MaxBytes:          10e6,
		MaxWait:           time.Second,
		StartOffset:       kafka.FirstOffset,
		CommitInterval:    0, // synchronous commits
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		RebalanceTimeout:  60 * time.Second,
		Dialer: &kafka.Dialer{
			ClientID:  q.config.ClientID,
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})

	q.readers[readerKey] = reader
	return reader, nil
}

func (q *KafkaQueue) releaseReader(topic, group string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	readerKey := groupKey(topic, group)
	if reader, ok := q.readers[readerKey]; ok {
		_ = reader.Close()
		delete(q.readers, readerKey)
	}
}

// Subscribe consumes topic as a member of group. Offsets are committed only
// after handler succeeds.
func (q *KafkaQueue) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	reader, err := q.newReader(topic, group)
	if err != nil {
		return err
	}
	defer q.releaseReader(topic, group)

	q.logger.Info("Subscribed to kafka topic", "topic", topic, "group", group)

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || q.isClosed() {
				return nil
			}
			q.logger.Warn("Kafka fetch failed", "topic", topic, "group", group, "error", err)
			if !sleepCtx(ctx, q.config.RetryBackoff) {
				return nil
			}
			continue
		}

		msg := Message{Topic: km.Topic, Key: string(km.Key), Value: km.Value}
		if err := q.retry.deliver(ctx, q.logger, msg, handler, nil); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handler gave up on message in %s: %w", topic, err)
		}

		q.commit(context.WithoutCancel(ctx), reader, km)
	}
}

// commit retries a failed commit a few times. A commit that never succeeds only
// causes the message to be delivered again.
func (q *KafkaQueue) commit(ctx context.Context, reader *kafka.Reader, km kafka.Message) {
	var err error
	for i := 0; i < q.config.CommitRetries; i++ {
		if err = reader.CommitMessages(ctx, km); err == nil {
			return
		}
		time.Sleep(q.config.RetryBackoff)
	}
	q.logger.Error("Failed to commit kafka offset",
		"topic", km.Topic,
		"partition", km.Partition,
		"offset", km.Offset,
		"error", err)
}

func (q *KafkaQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close closes all writers and readers
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true

	var lastErr error
	for topic, writer := range q.writers {
		if err := writer.Close(); err != nil {
			lastErr = err
		}
		delete(q.writers, topic)
	}
	for k, reader := range q.readers {
		if err := reader.Close(); err != nil {
			lastErr = err
		}
		delete(q.readers, k)
	}
	return lastErr
}

// sleepCtx waits for d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
