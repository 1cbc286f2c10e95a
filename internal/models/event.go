package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types carried in EventEnvelope.EventType
const (
	EventTypeEnrollmentCommitted = "EnrollmentCommitted"
	EventTypeShardProvisioned    = "ShardProvisioned"
	EventTypeShardStateChanged   = "ShardStateChanged"
	EventTypeShardResumed        = "ShardResumed"
	EventTypeShardStopped        = "ShardStopped"
	EventTypeShardDrained        = "ShardDrained"
	EventTypeShardFailed         = "ShardFailed"
)

var (
	// ErrUnknownEventType is returned when no payload type is bound to an EventType
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrInvalidPayload is returned when Data does not match the payload bound to its EventType
	ErrInvalidPayload = errors.New("invalid event payload")
)

// EventEnvelope wraps every event on the bus
type EventEnvelope[T any] struct {
	EventID       string    `json:"EventId"`
	EventType     string    `json:"EventType"`
	Source        string    `json:"Source"`
	Utc           time.Time `json:"Utc"`
	CorrelationID string    `json:"CorrelationId,omitempty"`
	TenantID      string    `json:"TenantId,omitempty"`
	Data          T         `json:"Data"`
	Severity      string    `json:"Severity,omitempty"`
}

// NewEnvelope wraps data with a fresh EventID and the current UTC time
func NewEnvelope[T any](eventType, source, correlationID string, data T) EventEnvelope[T] {
	return EventEnvelope[T]{
		EventID:       NewID(),
		EventType:     eventType,
		Source:        source,
		Utc:           time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          data,
	}
}

// ShardProvisioned is emitted once a Create command completes
type ShardProvisioned struct {
	ShardID  string      `json:"ShardId"`
	Modality string      `json:"Modality"`
	Status   ShardStatus `json:"Status"`
}

// ShardStateChanged is the payload of ShardResumed events
type ShardStateChanged struct {
	ShardID string      `json:"ShardId"`
	Status  ShardStatus `json:"Status"`
}

// ShardStopped is emitted once a Stop command completes
type ShardStopped struct {
	ShardID string      `json:"ShardId"`
	Status  ShardStatus `json:"Status"`
}

// ShardDrained is emitted once a Drain command completes
type ShardDrained struct {
	ShardID string      `json:"ShardId"`
	Status  ShardStatus `json:"Status"`
}

// ShardFailed is emitted when a command could not be carried out
type ShardFailed struct {
	ShardID string `json:"ShardId"`
	Reason  string `json:"Reason"`
}

type payload interface {
	validate() error
}

func requireShard(shardID string, status ShardStatus) error {
	if shardID == "" {
		return errors.New("missing ShardId")
	}
	if _, err := ParseShardStatus(string(status)); err != nil {
		return err
	}
	return nil
}

func (p *ShardProvisioned) validate() error  { return requireShard(p.ShardID, p.Status) }
func (p *ShardStateChanged) validate() error { return requireShard(p.ShardID, p.Status) }
func (p *ShardStopped) validate() error      { return requireShard(p.ShardID, p.Status) }
func (p *ShardDrained) validate() error      { return requireShard(p.ShardID, p.Status) }

func (p *ShardFailed) validate() error {
	if p.ShardID == "" {
		return errors.New("missing ShardId")
	}
	if p.Reason == "" {
		return errors.New("missing Reason")
	}
	return nil
}

func (p *EnrollmentCommitted) validate() error {
	if p.Identifier == "" || p.Modality == "" || p.ManifestID == "" {
		return errors.New("missing Identifier, Modality or ManifestId")
	}
	return nil
}

// payloadTypes binds each event type to the payload its Data must decode to.
// ShardResumed carries a ShardStateChanged payload.
var payloadTypes = map[string]func() payload{
	EventTypeEnrollmentCommitted: func() payload { return &EnrollmentCommitted{} },
	EventTypeShardProvisioned:    func() payload { return &ShardProvisioned{} },
	EventTypeShardStateChanged:   func() payload { return &ShardStateChanged{} },
	EventTypeShardResumed:        func() payload { return &ShardStateChanged{} },
	EventTypeShardStopped:        func() payload { return &ShardStopped{} },
	EventTypeShardDrained:        func() payload { return &ShardDrained{} },
	EventTypeShardFailed:         func() payload { return &ShardFailed{} },
}

// DecodeEnvelope decodes an envelope whose payload type is known to the caller.
// Utc is read with ParseUtc, so producers that omit the zone are accepted.
func DecodeEnvelope[T any](raw []byte) (EventEnvelope[T], error) {
	var wire struct {
		EventEnvelope[T]
		Utc json.RawMessage `json:"Utc"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return EventEnvelope[T]{}, fmt.Errorf("decode envelope: %w", err)
	}

	env := wire.EventEnvelope
	utc, err := ParseUtc(wire.Utc)
	if err != nil {
		return EventEnvelope[T]{}, fmt.Errorf("decode envelope: %w", err)
	}
	env.Utc = utc
	return env, nil
}

// utcLayouts are tried in order after RFC 3339; they carry no zone and are read as UTC
var utcLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseUtc reads a JSON timestamp. RFC 3339 values keep their offset and are
// converted to UTC; values without a zone are taken to be UTC. A missing or
// null value yields the zero time.
func ParseUtc(raw json.RawMessage) (time.Time, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return time.Time{}, nil
	}

	var value string
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return time.Time{}, fmt.Errorf("Utc is not a string: %w", err)
	}
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range utcLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised Utc timestamp %q", value)
}

// DecodeEvent decodes an envelope and validates that Data decodes strictly into the
// payload type bound to EventType. The returned Data holds a pointer to that payload.
func DecodeEvent(raw []byte) (EventEnvelope[any], error) {
	env, err := DecodeEnvelope[json.RawMessage](raw)
	if err != nil {
		return EventEnvelope[any]{}, err
	}

	newPayload, ok := payloadTypes[env.EventType]
	if !ok {
		return EventEnvelope[any]{}, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return EventEnvelope[any]{}, fmt.Errorf("%w: %s has no data", ErrInvalidPayload, env.EventType)
	}

	p := newPayload()
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return EventEnvelope[any]{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.EventType, err)
	}
	if err := p.validate(); err != nil {
		return EventEnvelope[any]{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.EventType, err)
	}

	return EventEnvelope[any]{
		EventID:       env.EventID,
		EventType:     env.EventType,
		Source:        env.Source,
		Utc:           env.Utc,
		CorrelationID: env.CorrelationID,
		TenantID:      env.TenantID,
		Data:          p,
		Severity:      env.Severity,
	}, nil
}
