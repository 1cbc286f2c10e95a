package queue

import "context"

// Message is a single record read from a topic
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Handler processes one message. Returning nil commits the message;
// returning an error leaves it uncommitted so it is delivered again.
type Handler func(ctx context.Context, msg Message) error

// Publisher publishes keyed messages. Messages with the same key keep their
// relative order wherever the backend partitions topics.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error

	// Close closes the connection
	Close() error
}

// Subscriber consumes a topic as a member of a consumer group
type Subscriber interface {
	// Subscribe delivers messages of topic to handler one at a time and blocks
	// until ctx is cancelled. A message is committed only after handler returns nil.
	Subscribe(ctx context.Context, topic, group string, handler Handler) error

	// Close closes the connection
	Close() error
}

// Queue combines Publisher and Subscriber interfaces
type Queue interface {
	Publisher
	Subscriber
}
