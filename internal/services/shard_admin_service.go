package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/queue"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// ShardStore is the registry surface the admin service reads and writes
type ShardStore interface {
	Get(shardID string) (models.Shard, bool)
	GetPaged(modality string, status *models.ShardStatus, page, pageSize int) models.PagedResult[models.Shard]
	Insert(shard models.Shard) bool
	Upsert(shard models.Shard)
	UpdateStatus(shardID string, status models.ShardStatus)
	FleetOverview() models.FleetOverview
}

// CommandRecorder counts issued commands
type CommandRecorder interface {
	CommandIssued(commandType string)
}

// ShardAdminDeps wires a ShardAdminService
type ShardAdminDeps struct {
	Shards        ShardStore
	Publisher     queue.Publisher
	CommandsTopic string
	Admin         config.AdminConfig
	Recorder      CommandRecorder
	Logger        *logging.Logger
}

// ShardAdminService is the operator façade over the registry and the command topic.
// It never provisions anything itself: every mutation becomes a ShardCommand keyed by
// ShardId and the lifecycle worker applies it.
type ShardAdminService struct {
	shards        ShardStore
	publisher     queue.Publisher
	commandsTopic string
	admin         config.AdminConfig
	recorder      CommandRecorder
	logger        *logging.Logger
}

// NewShardAdminService creates the admin service. Zero admin settings fall back to
// the package defaults.
func NewShardAdminService(deps ShardAdminDeps) *ShardAdminService {
	admin := deps.Admin
	if admin.DefaultPageSize <= 0 {
		admin.DefaultPageSize = utils.DefaultPageSize
	}
	if admin.MaxPageSize <= 0 {
		admin.MaxPageSize = utils.MaxPageSize
	}
	if admin.DrainGraceSeconds <= 0 {
		admin.DrainGraceSeconds = utils.DefaultDrainGraceSeconds
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Global()
	}

	return &ShardAdminService{
		shards:        deps.Shards,
		publisher:     deps.Publisher,
		commandsTopic: deps.CommandsTopic,
		admin:         admin,
		recorder:      deps.Recorder,
		logger:        logger,
	}
}

// FleetOverview returns the aggregate shard counts
func (s *ShardAdminService) FleetOverview(_ context.Context) models.FleetOverview {
	return s.shards.FleetOverview()
}

// GetPaged lists shards filtered by modality and status. Page and PageSize of zero
// take the defaults, PageSize above the maximum is clamped.
func (s *ShardAdminService) GetPaged(_ context.Context, q models.ListShardsQuery) (models.PagedResult[models.Shard], error) {
	var status *models.ShardStatus
	if q.Status != "" {
		parsed, err := models.ParseShardStatus(q.Status)
		if err != nil {
			return models.PagedResult[models.Shard]{}, NewServiceErrorWithDetails(ErrCodeInvalidRequest,
				"Invalid status", map[string]interface{}{"status": q.Status})
		}
		status = &parsed
	}

	page, pageSize := q.Page, q.PageSize
	if page < 0 || pageSize < 0 {
		return models.PagedResult[models.Shard]{}, invalidRequest("page and pageSize cannot be negative")
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = s.admin.DefaultPageSize
	}
	if pageSize > s.admin.MaxPageSize {
		pageSize = s.admin.MaxPageSize
	}

	return s.shards.GetPaged(q.Modality, status, page, pageSize), nil
}

// Get returns a single shard or a NOT_FOUND error
func (s *ShardAdminService) Get(_ context.Context, shardID string) (models.Shard, error) {
	shard, ok := s.shards.Get(shardID)
	if !ok {
		return models.Shard{}, notFound(shardID)
	}
	return shard, nil
}

// Create records a new shard as Provisioning and publishes its Create command.
// An existing shard (compared case-insensitively) is a CONFLICT and nothing changes.
func (s *ShardAdminService) Create(ctx context.Context, req models.CreateShardRequest) (models.Shard, error) {
	if err := req.Validate(); err != nil {
		return models.Shard{}, invalidRequest(err.Error())
	}

	shard := models.Shard{
		ShardID:  req.ShardID,
		Modality: req.Modality,
		Status:   models.ShardStatusProvisioning,
		Capacity: req.Capacity,
	}
	if !s.shards.Insert(shard) {
		details := map[string]interface{}{"shard_id": req.ShardID}
		if existing, ok := s.shards.Get(req.ShardID); ok {
			details["shard_id"] = existing.ShardID
			details["status"] = existing.Status
		}
		return models.Shard{}, NewServiceErrorWithDetails(ErrCodeConflict, "Shard already exists", details)
	}
	shard, _ = s.shards.Get(shard.ShardID)

	cmd := s.newCommand(ctx, models.CommandCreate, shard)
	if err := s.publish(ctx, cmd); err != nil {
		// Nothing will ever provision the shard, so do not leave it Provisioning
		s.shards.UpdateStatus(shard.ShardID, models.ShardStatusFailed)
		return models.Shard{}, err
	}

	s.logger.WithContext(ctx).Info("Shard created",
		"shard_id", shard.ShardID,
		"modality", shard.Modality,
		"capacity", shard.Capacity,
		"command_id", cmd.CommandID)

	return shard, nil
}

// IssueCommand publishes a Start, Stop, Drain or Resume command for an existing shard.
// Drain carries the configured grace period.
func (s *ShardAdminService) IssueCommand(ctx context.Context, cmdType models.CommandType, shardID string) (models.ShardCommand, error) {
	if cmdType == models.CommandCreate {
		return models.ShardCommand{}, invalidRequest("Create is issued through shard creation")
	}
	if _, err := models.ParseCommandType(string(cmdType)); err != nil {
		return models.ShardCommand{}, invalidRequest(err.Error())
	}

	shard, ok := s.shards.Get(shardID)
	if !ok {
		return models.ShardCommand{}, notFound(shardID)
	}

	cmd := s.newCommand(ctx, cmdType, shard)
	if cmdType == models.CommandDrain {
		grace := s.admin.DrainGraceSeconds
		cmd.GraceSeconds = &grace
	}

	if err := s.publish(ctx, cmd); err != nil {
		return models.ShardCommand{}, err
	}

	s.logger.WithContext(ctx).Info("Shard command issued",
		"shard_id", cmd.ShardID,
		"type", cmd.Type,
		"command_id", cmd.CommandID)

	return cmd, nil
}

func (s *ShardAdminService) newCommand(ctx context.Context, cmdType models.CommandType, shard models.Shard) models.ShardCommand {
	cmd := models.NewShardCommand(cmdType, shard.ShardID)
	cmd.Modality = shard.Modality
	cmd.Capacity = shard.Capacity
	cmd.Actor = logging.ActorFromContext(ctx)
	cmd.CorrelationID = logging.CorrelationIDFromContext(ctx)
	return cmd
}

// publish sends cmd keyed by ShardId so every command of a shard lands on one partition
func (s *ShardAdminService) publish(ctx context.Context, cmd models.ShardCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, utils.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, s.commandsTopic, cmd.ShardID, data); err != nil {
		s.logger.WithContext(ctx).Error("Failed to publish shard command",
			"shard_id", cmd.ShardID,
			"type", cmd.Type,
			"topic", s.commandsTopic,
			"error", err)
		return fmt.Errorf("failed to publish %s command for shard %s: %w", cmd.Type, cmd.ShardID, err)
	}

	if s.recorder != nil {
		s.recorder.CommandIssued(string(cmd.Type))
	}
	return nil
}
