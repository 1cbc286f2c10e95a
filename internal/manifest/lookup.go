package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shardfleet/shardfleet/internal/metadata"
)

// ErrNotFound is returned when a manifest id has no stored document
var ErrNotFound = errors.New("manifest not found")

// ErrInvalidManifest is returned when the stored document is not JSON. Retrying
// cannot fix it, so callers treat it like a missing manifest.
var ErrInvalidManifest = errors.New("manifest is not valid JSON")

// Lookup fetches the raw JSON manifest for an enrollment
type Lookup interface {
	GetManifestJSON(ctx context.Context, manifestID string) (json.RawMessage, error)
}

// StoreLookup reads manifests from a metadata.Store, one key per manifest
// under a common prefix
type StoreLookup struct {
	store  metadata.Store
	prefix string
}

// NewStoreLookup creates a lookup reading <prefix>/<manifestId>
func NewStoreLookup(store metadata.Store, prefix string) *StoreLookup {
	return &StoreLookup{
		store:  store,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

// Key returns the store key holding manifestID
func (l *StoreLookup) Key(manifestID string) string {
	return l.prefix + "/" + manifestID
}

// GetManifestJSON returns the stored document or ErrNotFound
func (l *StoreLookup) GetManifestJSON(ctx context.Context, manifestID string) (json.RawMessage, error) {
	if strings.TrimSpace(manifestID) == "" {
		return nil, ErrNotFound
	}

	value, err := l.store.Get(ctx, l.Key(manifestID))
	if errors.Is(err, metadata.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", manifestID, err)
	}

	if !json.Valid([]byte(value)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, manifestID)
	}
	return json.RawMessage(value), nil
}

// Put stores a manifest document, used to seed development stores
func (l *StoreLookup) Put(ctx context.Context, manifestID string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return fmt.Errorf("%w: %s", ErrInvalidManifest, manifestID)
	}
	return l.store.Put(ctx, l.Key(manifestID), string(doc))
}
