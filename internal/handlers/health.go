package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// Health runs the dependency checks. Any failing check turns the response into a 503.
func (h *Handler) Health(c *fiber.Ctx) error {
	resp := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   Version,
	}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.UserContext(), utils.HealthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for _, check := range h.checks {
			if err := check.Check(ctx); err != nil {
				h.logger.Warn("Health check failed", "check", check.Name, "error", err)
				resp.Checks[check.Name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[check.Name] = "ok"
		}
	}

	if resp.Status != "healthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

// Live is the anonymous liveness probe
func (h *Handler) Live(c *fiber.Ctx) error {
	return c.JSON(models.LiveResponse{Status: "Live"})
}

// NotFound handles 404 errors
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "NOT_FOUND",
			Message: "Route not found",
			Path:    c.Path(),
		},
	})
}
