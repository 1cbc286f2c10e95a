package router

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/metrics"
	"github.com/shardfleet/shardfleet/internal/middleware"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/queue"
	"github.com/shardfleet/shardfleet/internal/registry"
	"github.com/shardfleet/shardfleet/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAPIKey = strings.Repeat("k", middleware.MinAPIKeyLength)

func newTestApp(t *testing.T, mutate func(cfg *config.Config)) (*fiber.App, *queue.MemoryQueue) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	logger := logging.NewNop()
	reg := registry.NewShardRegistry()
	reg.Upsert(models.Shard{ShardID: "S1", Modality: "face", Status: models.ShardStatusActive})
	q := queue.NewMemoryQueue(queue.RetryPolicy{}, logger)
	m := metrics.NewRegistry()
	m.MustRegister(metrics.NewFleetCollector(reg))

	admin := services.NewShardAdminService(services.ShardAdminDeps{
		Shards:        reg,
		Publisher:     q,
		CommandsTopic: cfg.Topics.ShardCommands,
		Admin:         cfg.Admin,
		Recorder:      m,
		Logger:        logger,
	})

	app := New(Deps{Logger: logger, Admin: admin, Metrics: m}, *cfg)
	return app, q
}

func request(t *testing.T, app *fiber.App, method, path, user, roles string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(middleware.UserHeader, user)
	}
	if roles != "" {
		req.Header.Set(middleware.RolesHeader, roles)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRouter_RolePolicies(t *testing.T) {
	app, q := newTestApp(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		roles  string
		want   int
	}{
		{"live is anonymous", "GET", "/api/health/live", "", "", fiber.StatusOK},
		{"health is anonymous", "GET", "/health", "", "", fiber.StatusOK},
		{"anonymous list", "GET", "/api/sm/shards", "", "", fiber.StatusUnauthorized},
		{"operator list", "GET", "/api/sm/shards", "op", "sm-operator", fiber.StatusOK},
		{"operator overview", "GET", "/api/sm/shards/fleet-overview", "op", "sm-operator", fiber.StatusOK},
		{"operator get", "GET", "/api/sm/shards/S1", "op", "sm-operator", fiber.StatusOK},
		{"viewer get", "GET", "/api/sm/shards/S1", "v", "viewer", fiber.StatusForbidden},
		{"operator stop", "POST", "/api/sm/shards/S1/stop", "op", "sm-operator", fiber.StatusForbidden},
		{"admin stop", "POST", "/api/sm/shards/S1/stop", "root", "sm-admin", fiber.StatusAccepted},
		{"admin unknown shard", "POST", "/api/sm/shards/S9/drain", "root", "sm-admin", fiber.StatusNotFound},
		{"unknown route", "GET", "/nope", "", "", fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, request(t, app, tt.method, tt.path, tt.user, tt.roles))
		})
	}

	assert.Len(t, q.Messages(config.DefaultConfig().Topics.ShardCommands), 1)
}

func TestRouter_AuthDisabled(t *testing.T) {
	app, _ := newTestApp(t, func(cfg *config.Config) { cfg.Auth.Enabled = false })

	assert.Equal(t, fiber.StatusOK, request(t, app, "GET", "/api/sm/shards", "", ""))
	assert.Equal(t, fiber.StatusAccepted, request(t, app, "POST", "/api/sm/shards/S1/drain", "", ""))
}

func TestRouter_APIKey(t *testing.T) {
	app, _ := newTestApp(t, func(cfg *config.Config) { cfg.Auth.APIKeys = []string{testAPIKey} })

	assert.Equal(t, fiber.StatusUnauthorized, request(t, app, "GET", "/api/sm/shards", "op", "sm-operator"))

	req := httptest.NewRequest("GET", "/api/sm/shards", nil)
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	req.Header.Set(middleware.UserHeader, "op")
	req.Header.Set(middleware.RolesHeader, "sm-operator")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, fiber.StatusOK, request(t, app, "GET", "/api/health/live", "", ""), "probes skip the key")
}

func TestRouter_Metrics(t *testing.T) {
	app, _ := newTestApp(t, nil)

	require.Equal(t, fiber.StatusAccepted, request(t, app, "POST", "/api/sm/shards/S1/stop", "root", "sm-admin"))

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `shardfleet_shards{status="Active"} 1`)
	assert.Contains(t, string(body), `shardfleet_admin_commands_issued_total{type="Stop"} 1`)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	app, _ := newTestApp(t, func(cfg *config.Config) { cfg.Metrics.Enabled = false })
	assert.Equal(t, fiber.StatusNotFound, request(t, app, "GET", "/metrics", "", ""))
}
