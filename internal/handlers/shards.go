package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/services"
)

// FleetOverview handles GET /api/sm/shards/fleet-overview
func (h *Handler) FleetOverview(c *fiber.Ctx) error {
	return c.JSON(h.admin.FleetOverview(c.UserContext()))
}

// ListShards handles GET /api/sm/shards?modality=&status=&page=&pageSize=
func (h *Handler) ListShards(c *fiber.Ctx) error {
	var q models.ListShardsQuery
	if err := c.QueryParser(&q); err != nil {
		return services.NewServiceError(services.ErrCodeInvalidRequest, "Invalid query parameters: "+err.Error())
	}

	result, err := h.admin.GetPaged(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// GetShard handles GET /api/sm/shards/:shardId
func (h *Handler) GetShard(c *fiber.Ctx) error {
	shard, err := h.admin.Get(c.UserContext(), c.Params("shardId"))
	if err != nil {
		return err
	}
	return c.JSON(shard)
}

// CreateShard handles POST /api/sm/shards
func (h *Handler) CreateShard(c *fiber.Ctx) error {
	var req models.CreateShardRequest
	if err := c.BodyParser(&req); err != nil {
		return services.NewServiceError(services.ErrCodeInvalidRequest, "Invalid request body: "+err.Error())
	}

	shard, err := h.admin.Create(c.UserContext(), req)
	if err != nil {
		return err
	}

	c.Location("/api/sm/shards/" + shard.ShardID)
	return c.Status(fiber.StatusCreated).JSON(shard)
}

// StartShard handles POST /api/sm/shards/:shardId/start
func (h *Handler) StartShard(c *fiber.Ctx) error {
	return h.issueCommand(c, models.CommandStart)
}

// StopShard handles POST /api/sm/shards/:shardId/stop
func (h *Handler) StopShard(c *fiber.Ctx) error {
	return h.issueCommand(c, models.CommandStop)
}

// DrainShard handles POST /api/sm/shards/:shardId/drain
func (h *Handler) DrainShard(c *fiber.Ctx) error {
	return h.issueCommand(c, models.CommandDrain)
}

// ResumeShard handles POST /api/sm/shards/:shardId/resume
func (h *Handler) ResumeShard(c *fiber.Ctx) error {
	return h.issueCommand(c, models.CommandResume)
}

func (h *Handler) issueCommand(c *fiber.Ctx, cmdType models.CommandType) error {
	cmd, err := h.admin.IssueCommand(c.UserContext(), cmdType, c.Params("shardId"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(models.CommandAcceptedResponse{
		CommandID:     cmd.CommandID,
		Type:          cmd.Type,
		ShardID:       cmd.ShardID,
		CorrelationID: cmd.CorrelationID,
	})
}
