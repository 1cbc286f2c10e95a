package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFleet models.FleetOverview

func (f staticFleet) FleetOverview() models.FleetOverview { return models.FleetOverview(f) }

func TestRegistry_ObserveMessage(t *testing.T) {
	r := NewRegistry()

	r.ObserveMessage("lifecycle", OutcomeProcessed, 10*time.Millisecond)
	r.ObserveMessage("lifecycle", OutcomeProcessed, 20*time.Millisecond)
	r.ObserveMessage("lifecycle", OutcomeFailed, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.workerMessages.WithLabelValues("lifecycle", OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.workerMessages.WithLabelValues("lifecycle", OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.workerDuration))
}

func TestRegistry_CommandsAndProvisioner(t *testing.T) {
	r := NewRegistry()

	r.CommandIssued("Drain")
	r.CommandIssued("Drain")
	r.ObserveProvisioner("Create", nil, time.Millisecond)
	r.ObserveProvisioner("Create", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.commandsIssued.WithLabelValues("Drain")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.provisionerCalls))
}

func TestFleetCollector(t *testing.T) {
	c := NewFleetCollector(staticFleet{Total: 6, Active: 3, Stopped: 1, Draining: 1, Failed: 0})

	expected := `
# HELP shardfleet_shards Shards in the registry by status
# TYPE shardfleet_shards gauge
shardfleet_shards{status="Active"} 3
shardfleet_shards{status="Draining"} 1
shardfleet_shards{status="Failed"} 0
shardfleet_shards{status="Stopped"} 1
# HELP shardfleet_shards_total Shards in the registry
# TYPE shardfleet_shards_total gauge
shardfleet_shards_total 6
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFleetCollector(staticFleet{Total: 1, Active: 1}))
	r.ObserveMessage("ingest", OutcomeSkipped, time.Millisecond)

	app := fiber.New()
	app.Get("/metrics", r.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `shardfleet_worker_messages_total{outcome="skipped",worker="ingest"} 1`)
	assert.Contains(t, string(body), `shardfleet_shards{status="Active"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
