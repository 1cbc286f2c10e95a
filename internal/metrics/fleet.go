package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shardfleet/shardfleet/internal/models"
)

// FleetSource supplies aggregate shard counts
type FleetSource interface {
	FleetOverview() models.FleetOverview
}

// FleetCollector exports shard counts per status, computed at scrape time
type FleetCollector struct {
	source FleetSource
	shards *prometheus.Desc
	total  *prometheus.Desc
}

// NewFleetCollector creates a collector reading from source
func NewFleetCollector(source FleetSource) *FleetCollector {
	return &FleetCollector{
		source: source,
		shards: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "shards"),
			"Shards in the registry by status",
			[]string{"status"}, nil,
		),
		total: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "shards_total"),
			"Shards in the registry",
			nil, nil,
		),
	}
}

func (c *FleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.shards
	ch <- c.total
}

func (c *FleetCollector) Collect(ch chan<- prometheus.Metric) {
	o := c.source.FleetOverview()

	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(o.Total))
	for status, n := range map[models.ShardStatus]int{
		models.ShardStatusActive:   o.Active,
		models.ShardStatusStopped:  o.Stopped,
		models.ShardStatusDraining: o.Draining,
		models.ShardStatusFailed:   o.Failed,
	} {
		ch <- prometheus.MustNewConstMetric(c.shards, prometheus.GaugeValue, float64(n), string(status))
	}
}
