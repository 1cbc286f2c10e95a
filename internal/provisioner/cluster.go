package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/metadata"
	"github.com/shardfleet/shardfleet/internal/models"
)

// Desired phases written for the cluster operator
const (
	PhaseRunning  = "Running"
	PhaseStopped  = "Stopped"
	PhaseDraining = "Draining"
)

// DesiredState is the record a cluster operator reconciles for one shard
type DesiredState struct {
	ShardID       string    `json:"ShardId"`
	Modality      string    `json:"Modality"`
	Capacity      int       `json:"Capacity"`
	Phase         string    `json:"Phase"`
	Replicas      int       `json:"Replicas"`
	GraceSeconds  *int      `json:"GraceSeconds,omitempty"`
	CommandID     string    `json:"CommandId"`
	CorrelationID string    `json:"CorrelationId,omitempty"`
	UpdatedUtc    time.Time `json:"UpdatedUtc"`
}

// ClusterProvisioner records the desired state of each shard under
// <prefix>/<ShardId> in a metadata store
type ClusterProvisioner struct {
	store  metadata.Store
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

// NewClusterProvisioner creates a new ClusterProvisioner
func NewClusterProvisioner(store metadata.Store, prefix string, logger *logging.Logger) *ClusterProvisioner {
	return &ClusterProvisioner{
		store:  store,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.With("component", "provisioner.cluster"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Key returns the store key for shardID. Ids are upper-cased so that the
// record is shared by every spelling of the same shard.
func (p *ClusterProvisioner) Key(shardID string) string {
	return p.prefix + "/" + strings.ToUpper(shardID)
}

// Execute merges the command into the shard's desired-state record
func (p *ClusterProvisioner) Execute(ctx context.Context, cmd models.ShardCommand) error {
	if strings.TrimSpace(cmd.ShardID) == "" {
		return fmt.Errorf("command %s has no ShardId", cmd.CommandID)
	}

	current, err := p.Get(ctx, cmd.ShardID)
	if err != nil {
		return err
	}
	if current == nil {
		current = &DesiredState{ShardID: cmd.ShardID}
	}

	desired := *current
	if cmd.Modality != "" {
		desired.Modality = cmd.Modality
	}
	if cmd.Capacity > 0 {
		desired.Capacity = cmd.Capacity
	}
	desired.CommandID = cmd.CommandID
	desired.CorrelationID = cmd.CorrelationID
	desired.UpdatedUtc = p.now()
	desired.GraceSeconds = nil

	switch cmd.Type {
	case models.CommandCreate, models.CommandStart, models.CommandResume:
		desired.Phase = PhaseRunning
		desired.Replicas = 1
	case models.CommandStop:
		desired.Phase = PhaseStopped
		desired.Replicas = 0
	case models.CommandDrain:
		desired.Phase = PhaseDraining
		desired.Replicas = 1
		desired.GraceSeconds = cmd.GraceSeconds
	default:
		return fmt.Errorf("unsupported command type: %s", cmd.Type)
	}

	data, err := json.Marshal(desired)
	if err != nil {
		return fmt.Errorf("failed to encode desired state: %w", err)
	}

	if err := p.store.Put(ctx, p.Key(cmd.ShardID), string(data)); err != nil {
		return fmt.Errorf("failed to write desired state for %s: %w", cmd.ShardID, err)
	}

	p.logger.Info("Desired state updated",
		"shard_id", cmd.ShardID,
		"command", string(cmd.Type),
		"phase", desired.Phase,
		"correlation_id", cmd.CorrelationID)
	return nil
}

// Get returns the recorded desired state, or nil when none exists
func (p *ClusterProvisioner) Get(ctx context.Context, shardID string) (*DesiredState, error) {
	value, err := p.store.Get(ctx, p.Key(shardID))
	if errors.Is(err, metadata.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read desired state for %s: %w", shardID, err)
	}

	var state DesiredState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return nil, fmt.Errorf("corrupt desired state for %s: %w", shardID, err)
	}
	return &state, nil
}

// List returns every desired-state record
func (p *ClusterProvisioner) List(ctx context.Context) ([]DesiredState, error) {
	values, err := p.store.GetPrefix(ctx, p.prefix+"/")
	if err != nil {
		return nil, err
	}

	states := make([]DesiredState, 0, len(values))
	for key, value := range values {
		var state DesiredState
		if err := json.Unmarshal([]byte(value), &state); err != nil {
			p.logger.Warn("Skipping corrupt desired state", "key", key, "error", err)
			continue
		}
		states = append(states, state)
	}
	return states, nil
}
