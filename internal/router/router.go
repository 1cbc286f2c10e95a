package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/handlers"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/metrics"
	"github.com/shardfleet/shardfleet/internal/middleware"
	"github.com/shardfleet/shardfleet/internal/services"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// Deps are the collaborators the admin API serves
type Deps struct {
	Logger  *logging.Logger
	Admin   *services.ShardAdminService
	Metrics *metrics.Registry
	Checks  []handlers.HealthCheck
}

// Setup configures all routes and middlewares
func Setup(app *fiber.App, deps Deps, cfg config.Config) *handlers.Handler {
	logger := deps.Logger
	h := handlers.New(logger, deps.Admin, deps.Checks...)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID,X-Correlation-Id,X-User,X-Roles",
		ExposeHeaders: "X-Request-ID,X-Correlation-Id,Location",
	}))
	app.Use(logging.FiberMiddleware(logger, "/health", "/api/health/live", cfg.Metrics.Path))

	// Probes and metrics (no auth required)
	app.Get("/health", h.Health)
	app.Get("/api/health/live", h.Live)
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		app.Get(cfg.Metrics.Path, deps.Metrics.Handler())
	}

	guards := []fiber.Handler{
		middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled && len(cfg.Auth.APIKeys) > 0),
		middleware.PrincipalFromHeaders(logger),
	}
	read, write := passThrough, passThrough
	if cfg.Auth.Enabled {
		read = middleware.RequireOperator(logger)
		write = middleware.RequireAdmin(logger)
	}

	shards := app.Group("/api/sm/shards", guards...)

	// Reads (sm-operator or sm-admin)
	shards.Get("/fleet-overview", read, h.FleetOverview)
	shards.Get("/", read, h.ListShards)
	shards.Get("/:shardId", read, h.GetShard)

	// Mutations (sm-admin)
	shards.Post("/", write, h.CreateShard)
	shards.Post("/:shardId/start", write, h.StartShard)
	shards.Post("/:shardId/stop", write, h.StopShard)
	shards.Post("/:shardId/drain", write, h.DrainShard)
	shards.Post("/:shardId/resume", write, h.ResumeShard)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

func passThrough(c *fiber.Ctx) error {
	return c.Next()
}

// New creates a new Fiber app with configuration
func New(deps Deps, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Shardfleet Manager",
		DisableStartupMessage: true,
		ReadTimeout:           utils.DefaultRequestTimeout,
		WriteTimeout:          utils.DefaultRequestTimeout,
		ErrorHandler:          middleware.ErrorHandler(deps.Logger),
	})

	Setup(app, deps, cfg)

	return app
}
