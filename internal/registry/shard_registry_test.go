package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shardfleet/shardfleet/internal/models"
)

func newTestRegistry() (*ShardRegistry, *time.Time) {
	r := NewShardRegistry()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestShardRegistry_UpsertAndGet(t *testing.T) {
	r, clock := newTestRegistry()

	r.Upsert(models.Shard{ShardID: "Face-01", Modality: "face", Status: models.ShardStatusProvisioning, Capacity: 10})

	shard, ok := r.Get("face-01")
	if !ok {
		t.Fatal("expected case-insensitive lookup to find shard")
	}
	if shard.ShardID != "Face-01" {
		t.Errorf("expected original id casing, got %s", shard.ShardID)
	}
	if !shard.CreatedUtc.Equal(*clock) || !shard.UpdatedUtc.Equal(*clock) {
		t.Errorf("expected timestamps to be set to clock, got %v / %v", shard.CreatedUtc, shard.UpdatedUtc)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing shard")
	}
}

func TestShardRegistry_UpsertReplaces(t *testing.T) {
	r, clock := newTestRegistry()

	r.Upsert(models.Shard{ShardID: "s1", Modality: "face", Status: models.ShardStatusActive, Capacity: 1})
	*clock = clock.Add(time.Minute)
	r.Upsert(models.Shard{ShardID: "S1", Modality: "voice", Status: models.ShardStatusProvisioning, Capacity: 2})

	if got := r.FleetOverview().Total; got != 1 {
		t.Fatalf("expected a single record after case-insensitive replace, got %d", got)
	}

	shard, _ := r.Get("s1")
	if shard.Modality != "voice" || shard.Capacity != 2 || shard.Status != models.ShardStatusProvisioning {
		t.Errorf("expected full replacement, got %+v", shard)
	}
	if !shard.UpdatedUtc.Equal(*clock) {
		t.Errorf("expected UpdatedUtc refresh, got %v", shard.UpdatedUtc)
	}
}

func TestShardRegistry_InsertOnlyWhenAbsent(t *testing.T) {
	r, clock := newTestRegistry()

	if !r.Insert(models.Shard{ShardID: "S1", Modality: "face", Status: models.ShardStatusProvisioning, Capacity: 4}) {
		t.Fatal("expected first insert to succeed")
	}
	*clock = clock.Add(time.Minute)
	if r.Insert(models.Shard{ShardID: "s1", Modality: "voice", Status: models.ShardStatusActive}) {
		t.Fatal("expected insert of an existing id to be refused")
	}

	shard, _ := r.Get("S1")
	if shard.Modality != "face" || shard.Status != models.ShardStatusProvisioning || shard.Capacity != 4 {
		t.Errorf("expected refused insert to leave the record untouched, got %+v", shard)
	}
	if !shard.UpdatedUtc.Equal(clock.Add(-time.Minute)) {
		t.Errorf("expected UpdatedUtc from the first insert, got %v", shard.UpdatedUtc)
	}
}

func TestShardRegistry_ConcurrentInsert(t *testing.T) {
	r := NewShardRegistry()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Insert(models.Shard{ShardID: "S1", Capacity: i}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one insert to win, got %d", wins)
	}
}

func TestShardRegistry_UpdateStatus(t *testing.T) {
	r, clock := newTestRegistry()
	r.Upsert(models.Shard{ShardID: "s1", Modality: "face", Status: models.ShardStatusProvisioning})

	*clock = clock.Add(time.Second)
	r.UpdateStatus("S1", models.ShardStatusActive)

	shard, _ := r.Get("s1")
	if shard.Status != models.ShardStatusActive {
		t.Errorf("expected Active, got %s", shard.Status)
	}
	if !shard.UpdatedUtc.Equal(*clock) {
		t.Errorf("expected UpdatedUtc refresh")
	}

	r.UpdateStatus("ghost", models.ShardStatusFailed)
	if _, ok := r.Get("ghost"); ok {
		t.Error("UpdateStatus must not create unknown shards")
	}
}

func TestShardRegistry_ReturnsCopies(t *testing.T) {
	r, _ := newTestRegistry()
	r.Upsert(models.Shard{ShardID: "s1", Modality: "face", Status: models.ShardStatusActive})

	shard, _ := r.Get("s1")
	shard.Status = models.ShardStatusFailed

	again, _ := r.Get("s1")
	if again.Status != models.ShardStatusActive {
		t.Error("mutating a returned shard must not change the registry")
	}

	page := r.GetPaged("", nil, 1, 10)
	page.Items[0].Modality = "tampered"
	again, _ = r.Get("s1")
	if again.Modality != "face" {
		t.Error("mutating a paged item must not change the registry")
	}
}

func TestShardRegistry_GetPaged(t *testing.T) {
	r, _ := newTestRegistry()
	for _, id := range []string{"s5", "s3", "s1", "s4", "s2"} {
		r.Upsert(models.Shard{ShardID: id, Modality: "face", Status: models.ShardStatusActive})
	}

	page := r.GetPaged("", nil, 2, 2)
	if page.TotalCount != 5 {
		t.Errorf("expected total 5, got %d", page.TotalCount)
	}
	if len(page.Items) != 2 || page.Items[0].ShardID != "s3" || page.Items[1].ShardID != "s4" {
		t.Errorf("expected s3,s4 got %+v", page.Items)
	}
	if page.Page != 2 || page.PageSize != 2 {
		t.Errorf("expected page metadata echoed, got %d/%d", page.Page, page.PageSize)
	}

	last := r.GetPaged("", nil, 3, 2)
	if len(last.Items) != 1 || last.Items[0].ShardID != "s5" {
		t.Errorf("expected s5 on last page, got %+v", last.Items)
	}

	beyond := r.GetPaged("", nil, 9, 2)
	if len(beyond.Items) != 0 || beyond.TotalCount != 5 {
		t.Errorf("expected empty page with total 5, got %+v", beyond)
	}

	zero := r.GetPaged("", nil, 0, 2)
	if len(zero.Items) != 2 || zero.Items[0].ShardID != "s1" {
		t.Errorf("page 0 should clamp to the first items, got %+v", zero.Items)
	}
}

func TestShardRegistry_GetPagedFilters(t *testing.T) {
	r, _ := newTestRegistry()
	r.Upsert(models.Shard{ShardID: "f1", Modality: "face", Status: models.ShardStatusActive})
	r.Upsert(models.Shard{ShardID: "f2", Modality: "FACE", Status: models.ShardStatusStopped})
	r.Upsert(models.Shard{ShardID: "v1", Modality: "voice", Status: models.ShardStatusActive})

	faces := r.GetPaged("Face", nil, 1, 10)
	if faces.TotalCount != 2 {
		t.Errorf("expected 2 face shards, got %d", faces.TotalCount)
	}

	active := models.ShardStatusActive
	activeFaces := r.GetPaged("face", &active, 1, 10)
	if activeFaces.TotalCount != 1 || activeFaces.Items[0].ShardID != "f1" {
		t.Errorf("expected only f1, got %+v", activeFaces.Items)
	}

	allActive := r.GetPaged("", &active, 1, 10)
	if allActive.TotalCount != 2 {
		t.Errorf("expected 2 active shards, got %d", allActive.TotalCount)
	}
}

func TestShardRegistry_GetActive(t *testing.T) {
	r, _ := newTestRegistry()
	r.Upsert(models.Shard{ShardID: "b", Modality: "face", Status: models.ShardStatusActive})
	r.Upsert(models.Shard{ShardID: "A", Modality: "face", Status: models.ShardStatusActive})
	r.Upsert(models.Shard{ShardID: "c", Modality: "face", Status: models.ShardStatusDraining})
	r.Upsert(models.Shard{ShardID: "d", Modality: "voice", Status: models.ShardStatusActive})

	active := r.GetActive("FACE")
	if len(active) != 2 {
		t.Fatalf("expected 2 active face shards, got %d", len(active))
	}
	if active[0].ShardID != "A" || active[1].ShardID != "b" {
		t.Errorf("expected order A,b got %s,%s", active[0].ShardID, active[1].ShardID)
	}

	if got := r.GetActive("iris"); len(got) != 0 {
		t.Errorf("expected no iris shards, got %d", len(got))
	}
}

func TestShardRegistry_FleetOverview(t *testing.T) {
	r, _ := newTestRegistry()
	statuses := []models.ShardStatus{
		models.ShardStatusProvisioning,
		models.ShardStatusActive,
		models.ShardStatusActive,
		models.ShardStatusStopped,
		models.ShardStatusDraining,
		models.ShardStatusFailed,
	}
	for i, s := range statuses {
		r.Upsert(models.Shard{ShardID: fmt.Sprintf("s%d", i), Modality: "face", Status: s})
	}

	got := r.FleetOverview()
	want := models.FleetOverview{Total: 6, Active: 2, Stopped: 1, Draining: 1, Failed: 1}
	if got != want {
		t.Errorf("FleetOverview() = %+v, want %+v", got, want)
	}
}

func TestCompareShardIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"a", "B", -1},
		{"B", "a", 1},
		{"s10", "s2", -1},
		{"abc", "abc", 0},
		{"ABC", "abc", -1},
	}

	for _, tt := range tests {
		if got := CompareShardIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareShardIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestShardRegistry_ConcurrentAccess(t *testing.T) {
	r := NewShardRegistry()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("s%d", i%20)
				switch (w + i) % 4 {
				case 0:
					r.Upsert(models.Shard{ShardID: id, Modality: "face", Status: models.ShardStatusActive})
				case 1:
					r.UpdateStatus(id, models.ShardStatusStopped)
				case 2:
					_ = r.GetActive("face")
				default:
					_ = r.FleetOverview()
				}
			}
		}(w)
	}
	wg.Wait()

	if total := r.FleetOverview().Total; total != 20 {
		t.Errorf("expected 20 shards, got %d", total)
	}
}
