package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shardfleet/shardfleet/internal/logging"
)

// KeyHeader carries the message key on NATS messages
const KeyHeader = "Shardfleet-Key"

// NATSConfig represents NATS JetStream configuration
type NATSConfig struct {
	URL          string
	Username     string
	Password     string
	StreamPrefix string        // Stream name prefix (default: "SHARDFLEET")
	AckWait      time.Duration // Redelivery timeout for unacked messages (default: 30s)
}

// NATSQueue implements Queue using NATS JetStream. Each topic gets its own
// stream and each (group, topic) pair a durable pull consumer.
type NATSQueue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	config  NATSConfig
	retry   RetryPolicy
	logger  *logging.Logger
	streams map[string]string
	subs    map[string]*nats.Subscription
	mu      sync.Mutex
}

// newNATSQueue creates a new NATS queue instance with JetStream enabled
func newNATSQueue(cfg NATSConfig, retry RetryPolicy, logger *logging.Logger) (*NATSQueue, error) {
	opts := []nats.Option{nats.Name("shardfleet")}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	q, err := newNATSQueueWithConn(conn, cfg, retry, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// newNATSQueueWithConn creates a new NATS queue instance with existing connection (used in tests)
func newNATSQueueWithConn(conn *nats.Conn, cfg NATSConfig, retry RetryPolicy, logger *logging.Logger) (*NATSQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "SHARDFLEET"
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Global()
	}

	return &NATSQueue{
		conn:    conn,
		js:      js,
		config:  cfg,
		retry:   retry,
		logger:  logger.With("component", "queue.nats"),
		streams: make(map[string]string),
		subs:    make(map[string]*nats.Subscription),
	}, nil
}

// ensureStream creates the stream backing topic if it does not exist yet
func (q *NATSQueue) ensureStream(topic string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if name, ok := q.streams[topic]; ok {
		return name, nil
	}

	name := q.config.StreamPrefix + "-" + sanitizeConsumerName(topic)
	if _, err := q.js.StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return "", fmt.Errorf("failed to look up stream %s: %w", name, err)
		}
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: []string{topic},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return "", fmt.Errorf("failed to create stream for topic %s: %w", topic, err)
		}
	}

	q.streams[topic] = name
	return name, nil
}

// ensureConsumer creates the durable pull consumer for a (group, topic) pair
func (q *NATSQueue) ensureConsumer(stream, durable, topic string) error {
	_, err := q.js.ConsumerInfo(stream, durable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("failed to look up consumer %s: %w", durable, err)
	}

	_, err = q.js.AddConsumer(stream, &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: topic,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		AckWait:       q.config.AckWait,
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}
	return nil
}

// Publish publishes a keyed message and waits for the JetStream ack
func (q *NATSQueue) Publish(ctx context.Context, topic, key string, value []byte) error {
	if _, err := q.ensureStream(topic); err != nil {
		return err
	}

	msg := nats.NewMsg(topic)
	msg.Data = value
	msg.Header.Set(KeyHeader, key)

	if _, err := q.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", topic, err)
	}
	return nil
}

// Subscribe pulls messages one at a time through a durable consumer named after
// group and topic. A message is acked only after handler succeeds.
func (q *NATSQueue) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	stream, err := q.ensureStream(topic)
	if err != nil {
		return err
	}

	durable := sanitizeConsumerName(group + "_" + topic)

	q.mu.Lock()
	if _, exists := q.subs[durable]; exists {
		q.mu.Unlock()
		return fmt.Errorf("group %s already subscribed to topic: %s", group, topic)
	}
	if err := q.ensureConsumer(stream, durable, topic); err != nil {
		q.mu.Unlock()
		return err
	}
	// Bound subscriptions leave the durable consumer in place on Unsubscribe
	sub, err := q.js.PullSubscribe(topic, durable, nats.Bind(stream, durable))
	if err != nil {
		q.mu.Unlock()
		return fmt.Errorf("failed to subscribe to subject %s: %w", topic, err)
	}
	q.subs[durable] = sub
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		if current, ok := q.subs[durable]; ok && current == sub {
			_ = sub.Unsubscribe()
			delete(q.subs, durable)
		}
		q.mu.Unlock()
	}()

	q.logger.Info("Subscribed to NATS subject", "topic", topic, "group", group, "durable", durable)

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil
			}
			q.logger.Warn("NATS fetch failed", "topic", topic, "group", group, "error", err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		for _, m := range msgs {
			msg := Message{Topic: topic, Key: m.Header.Get(KeyHeader), Value: m.Data}
			inProgress := func() { _ = m.InProgress() }

			if err := q.retry.deliver(ctx, q.logger, msg, handler, inProgress); err != nil {
				// Hand the message back so another member of the group picks it up
				_ = m.Nak()
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("handler gave up on message in %s: %w", topic, err)
			}

			if err := m.AckSync(); err != nil {
				q.logger.Error("Failed to ack NATS message", "topic", topic, "group", group, "error", err)
			}
		}
	}
}

// Close drains subscriptions and closes the NATS connection
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	for name, sub := range q.subs {
		_ = sub.Unsubscribe()
		delete(q.subs, name)
	}
	q.mu.Unlock()

	q.conn.Close()
	return nil
}

// GetNATSConn returns the underlying NATS connection
func (q *NATSQueue) GetNATSConn() *nats.Conn {
	return q.conn
}

// sanitizeConsumerName replaces invalid characters for stream and consumer names
// Names can only contain: A-Z, a-z, 0-9, dash (-) and underscore (_)
func sanitizeConsumerName(subject string) string {
	result := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}
