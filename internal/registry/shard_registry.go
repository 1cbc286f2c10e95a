package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shardfleet/shardfleet/internal/models"
)

// ShardRegistry is the authoritative in-memory view of the fleet.
// It is safe for concurrent use and only ever hands out copies of its records.
type ShardRegistry struct {
	mu     sync.RWMutex
	shards map[string]models.Shard
	now    func() time.Time
}

// NewShardRegistry creates an empty registry
func NewShardRegistry() *ShardRegistry {
	return &ShardRegistry{
		shards: make(map[string]models.Shard),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func key(shardID string) string {
	return strings.ToUpper(shardID)
}

// Get returns the shard with the given id, matched case-insensitively
func (r *ShardRegistry) Get(shardID string) (models.Shard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shard, ok := r.shards[key(shardID)]
	return shard, ok
}

// GetPaged filters by modality (case-insensitive, empty = any) and status (nil = any),
// orders by ShardID and returns the 1-indexed page together with the filtered total.
func (r *ShardRegistry) GetPaged(modality string, status *models.ShardStatus, page, pageSize int) models.PagedResult[models.Shard] {
	r.mu.RLock()
	matched := make([]models.Shard, 0, len(r.shards))
	for _, shard := range r.shards {
		if modality != "" && !strings.EqualFold(shard.Modality, modality) {
			continue
		}
		if status != nil && shard.Status != *status {
			continue
		}
		matched = append(matched, shard)
	}
	r.mu.RUnlock()

	SortByShardID(matched)

	result := models.PagedResult[models.Shard]{
		Items:      []models.Shard{},
		TotalCount: len(matched),
		Page:       page,
		PageSize:   pageSize,
	}

	skip := (page - 1) * pageSize
	if skip < 0 {
		skip = 0
	}
	if pageSize <= 0 || skip >= len(matched) {
		return result
	}

	end := skip + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	result.Items = append(result.Items, matched[skip:end]...)
	return result
}

// GetActive returns the Active shards of a modality ordered by ShardID
func (r *ShardRegistry) GetActive(modality string) []models.Shard {
	r.mu.RLock()
	active := make([]models.Shard, 0)
	for _, shard := range r.shards {
		if shard.Status == models.ShardStatusActive && strings.EqualFold(shard.Modality, modality) {
			active = append(active, shard)
		}
	}
	r.mu.RUnlock()

	SortByShardID(active)
	return active
}

// Upsert inserts or fully replaces a shard and refreshes UpdatedUtc.
// A zero CreatedUtc is set to the current time.
func (r *ShardRegistry) Upsert(shard models.Shard) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if shard.CreatedUtc.IsZero() {
		shard.CreatedUtc = now
	}
	shard.UpdatedUtc = now
	r.shards[key(shard.ShardID)] = shard
}

// Insert adds shard only when no shard with the same id exists, stamping
// CreatedUtc and UpdatedUtc. It reports whether the shard was added.
func (r *ShardRegistry) Insert(shard models.Shard) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(shard.ShardID)
	if _, exists := r.shards[k]; exists {
		return false
	}
	now := r.now()
	shard.CreatedUtc = now
	shard.UpdatedUtc = now
	r.shards[k] = shard
	return true
}

// UpdateStatus sets the status of a known shard. Unknown ids are ignored.
func (r *ShardRegistry) UpdateStatus(shardID string, status models.ShardStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(shardID)
	shard, ok := r.shards[k]
	if !ok {
		return
	}
	shard.Status = status
	shard.UpdatedUtc = r.now()
	r.shards[k] = shard
}

// FleetOverview counts shards per status in a single pass
func (r *ShardRegistry) FleetOverview() models.FleetOverview {
	r.mu.RLock()
	defer r.mu.RUnlock()

	overview := models.FleetOverview{Total: len(r.shards)}
	for _, shard := range r.shards {
		switch shard.Status {
		case models.ShardStatusActive:
			overview.Active++
		case models.ShardStatusStopped:
			overview.Stopped++
		case models.ShardStatusDraining:
			overview.Draining++
		case models.ShardStatusFailed:
			overview.Failed++
		}
	}
	return overview
}

// CompareShardIDs orders ids case-insensitively, breaking ties by byte order
// so that ids differing only in case still sort deterministically.
func CompareShardIDs(a, b string) int {
	ua, ub := strings.ToUpper(a), strings.ToUpper(b)
	switch {
	case ua < ub:
		return -1
	case ua > ub:
		return 1
	}
	return strings.Compare(a, b)
}

// SortByShardID sorts shards in place using CompareShardIDs
func SortByShardID(shards []models.Shard) {
	sort.SliceStable(shards, func(i, j int) bool {
		return CompareShardIDs(shards[i].ShardID, shards[j].ShardID) < 0
	})
}
