package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/shardfleet/shardfleet/internal/logging"
)

// MemoryQueue implements Queue with an in-process append-only log per topic and
// a committed offset per (group, topic). It keeps the commit semantics of the
// network backends and is used for development and tests.
type MemoryQueue struct {
	mu      sync.Mutex
	logs    map[string][]Message
	offsets map[string]int
	active  map[string]bool
	wake    chan struct{}
	closed  bool
	retry   RetryPolicy
	logger  *logging.Logger
}

// NewMemoryQueue creates a new in-memory queue instance
func NewMemoryQueue(retry RetryPolicy, logger *logging.Logger) *MemoryQueue {
	if logger == nil {
		logger = logging.Global()
	}
	return &MemoryQueue{
		logs:    make(map[string][]Message),
		offsets: make(map[string]int),
		active:  make(map[string]bool),
		wake:    make(chan struct{}),
		retry:   retry,
		logger:  logger.With("component", "queue.memory"),
	}
}

func groupKey(topic, group string) string {
	return group + "\x00" + topic
}

// Publish appends a message to the topic log
func (q *MemoryQueue) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := make([]byte, len(value))
	copy(data, value)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("memory queue closed")
	}

	q.logs[topic] = append(q.logs[topic], Message{Topic: topic, Key: key, Value: data})
	close(q.wake)
	q.wake = make(chan struct{})
	return nil
}

// next returns the first uncommitted message for the group, or a channel that is
// closed when new messages arrive
func (q *MemoryQueue) next(topic, group string) (Message, bool, <-chan struct{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Message{}, false, nil, true
	}

	offset := q.offsets[groupKey(topic, group)]
	if offset < len(q.logs[topic]) {
		return q.logs[topic][offset], true, nil, false
	}
	return Message{}, false, q.wake, false
}

func (q *MemoryQueue) commit(topic, group string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.offsets[groupKey(topic, group)]++
}

// Subscribe consumes topic for group until ctx is cancelled or the queue is closed.
// Only one subscription per (group, topic) is allowed.
func (q *MemoryQueue) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
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

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, ok, wake, closed := q.next(topic, group)
		if closed {
			return nil
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
			}
			continue
		}

		if err := q.retry.deliver(ctx, q.logger, msg, handler, nil); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handler gave up on message in %s: %w", topic, err)
		}
		q.commit(topic, group)
	}
}

// Messages returns a copy of everything published to topic
func (q *MemoryQueue) Messages(topic string) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, len(q.logs[topic]))
	copy(out, q.logs[topic])
	return out
}

// CommittedOffset returns how many messages of topic the group has committed
func (q *MemoryQueue) CommittedOffset(topic, group string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.offsets[groupKey(topic, group)]
}

// Close stops all subscriptions and rejects further publishes
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	return nil
}
