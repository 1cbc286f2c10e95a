package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shardfleet"

// Message outcomes recorded per worker
const (
	OutcomeProcessed = "processed" // side effects done, committed
	OutcomeSkipped   = "skipped"   // filtered, malformed or not applicable, committed
	OutcomeFailed    = "failed"    // command mapped to a failure state, committed
	OutcomeRetry     = "retry"     // handler error, left uncommitted
)

// Registry owns the prometheus registry of the service and its metrics
type Registry struct {
	registry *prometheus.Registry

	workerMessages   *prometheus.CounterVec
	workerDuration   *prometheus.HistogramVec
	commandsIssued   *prometheus.CounterVec
	provisionerCalls *prometheus.HistogramVec
}

// NewRegistry creates a registry with Go runtime and process collectors
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		workerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Messages handled by each worker, by outcome",
		}, []string{"worker", "outcome"}),

		workerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "processing_seconds",
			Help:      "Time spent handling one message",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"worker"}),

		commandsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "commands_issued_total",
			Help:      "Shard commands published by the admin service",
		}, []string{"type"}),

		provisionerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provisioner",
			Name:      "execute_seconds",
			Help:      "Provisioner Execute latency by command type and result",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "result"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.workerMessages,
		r.workerDuration,
		r.commandsIssued,
		r.provisionerCalls,
	)

	return r
}

// Prometheus returns the underlying registry
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// MustRegister adds further collectors, such as a FleetCollector
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// ObserveMessage records one handled message
func (r *Registry) ObserveMessage(worker, outcome string, d time.Duration) {
	r.workerMessages.WithLabelValues(worker, outcome).Inc()
	r.workerDuration.WithLabelValues(worker).Observe(d.Seconds())
}

// CommandIssued counts a published shard command
func (r *Registry) CommandIssued(commandType string) {
	r.commandsIssued.WithLabelValues(commandType).Inc()
}

// ObserveProvisioner records one provisioner call
func (r *Registry) ObserveProvisioner(commandType string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.provisionerCalls.WithLabelValues(commandType, result).Observe(d.Seconds())
}

// Handler serves the registry in the prometheus text format
func (r *Registry) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
