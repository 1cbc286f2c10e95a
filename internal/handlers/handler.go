package handlers

import (
	"context"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/services"
)

// Version is reported by /health
var Version = "1.0.0"

// HealthCheck probes one dependency for /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler contains all HTTP handlers
type Handler struct {
	logger *logging.Logger
	admin  *services.ShardAdminService
	checks []HealthCheck
}

// New creates a new handler instance
func New(logger *logging.Logger, admin *services.ShardAdminService, checks ...HealthCheck) *Handler {
	return &Handler{
		logger: logger,
		admin:  admin,
		checks: checks,
	}
}
