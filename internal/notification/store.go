package notification

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
)

// Envelope is a platform event whose payload is kept as raw JSON
type Envelope = models.EventEnvelope[json.RawMessage]

// Store receives platform events accepted by the notification filter.
// Append may be called again for an event that was already stored when the
// source redelivers it.
type Store interface {
	Append(ctx context.Context, env Envelope) error
}

// MemoryStore keeps notifications in process, in arrival order
type MemoryStore struct {
	mu     sync.RWMutex
	events []Envelope
	logger *logging.Logger
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(logger *logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.Global()
	}
	return &MemoryStore{logger: logger.With("component", "notification.memory")}
}

// Append stores env. Redelivered events are appended again.
func (s *MemoryStore) Append(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := make(json.RawMessage, len(env.Data))
	copy(data, env.Data)
	env.Data = data

	s.mu.Lock()
	s.events = append(s.events, env)
	s.mu.Unlock()

	s.logger.Info("Stored event", "event_type", env.EventType, "source", env.Source)
	return nil
}

// List returns a copy of every stored notification
func (s *MemoryStore) List() []Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Envelope, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored notifications
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Reader is implemented by stores that can list what they hold
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Envelope, error)
}
