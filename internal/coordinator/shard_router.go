package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/registry"
)

// ErrNoActiveShards is matched by every NoActiveShardsError
var ErrNoActiveShards = errors.New("no active shards")

// NoActiveShardsError reports that a modality has nothing to route to
type NoActiveShardsError struct {
	Modality string
}

func (e *NoActiveShardsError) Error() string {
	return fmt.Sprintf("no active shards for modality %q", e.Modality)
}

// Is makes errors.Is(err, ErrNoActiveShards) true
func (e *NoActiveShardsError) Is(target error) bool {
	return target == ErrNoActiveShards
}

// ActiveShardSource supplies the current active set of a modality
type ActiveShardSource interface {
	GetActive(modality string) []models.Shard
}

// ShardRouter maps (modality, identifier) to one active shard.
//
// The digest is SHA-256 of the UTF-8 identifier; its first four bytes, read as a
// little-endian uint32, are reduced modulo the number of active shards and used to
// index the active set sorted by ShardID. Any producer that computes routes on its
// own must use the same hash and byte order. Membership changes may move a large
// share of identifiers to different shards.
type ShardRouter struct {
	logger *logging.Logger
	source ActiveShardSource
}

// NewShardRouter creates a new ShardRouter instance
func NewShardRouter(logger *logging.Logger, source ActiveShardSource) *ShardRouter {
	return &ShardRouter{
		logger: logger,
		source: source,
	}
}

// ResolveTargetShard returns the ShardID that owns identifier within modality
func (r *ShardRouter) ResolveTargetShard(ctx context.Context, modality, identifier string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	active := r.source.GetActive(modality)
	if len(active) == 0 {
		return "", &NoActiveShardsError{Modality: modality}
	}

	ids := make([]string, len(active))
	for i, shard := range active {
		ids[i] = shard.ShardID
	}

	target := PickShard(ids, identifier)
	r.logger.Debug("Resolved target shard",
		"modality", modality,
		"identifier", identifier,
		"shard_id", target,
		"active_count", len(ids))

	return target, nil
}

// HashIdentifier returns the routing hash of identifier
func HashIdentifier(identifier string) uint32 {
	digest := sha256.Sum256([]byte(identifier))
	return binary.LittleEndian.Uint32(digest[:4])
}

// PickShard sorts a copy of shardIDs and returns the one owning identifier.
// It returns "" for an empty set.
func PickShard(shardIDs []string, identifier string) string {
	if len(shardIDs) == 0 {
		return ""
	}

	shards := make([]models.Shard, len(shardIDs))
	for i, id := range shardIDs {
		shards[i] = models.Shard{ShardID: id}
	}
	registry.SortByShardID(shards)

	index := HashIdentifier(identifier) % uint32(len(shards))
	return shards[index].ShardID
}
