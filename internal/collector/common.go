// Package collector copies the state of the clock components into
// Prometheus metrics.
//
// Collectors:
//   - DisciplineCollector: offset, delta, accuracy, quality, ages
//   - ReceiverCollector: frame counters and serial port state
//   - ReferenceCollector: NTP cross-check divergence, runs the checks
//   - OutputsCollector: UDP broadcast and websocket counters
//
// All collectors implement Collector and are driven through a Registry.
package collector

import (
	"time"

	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/metrics"
)

// CommonCollector provides shared functionality for all collectors
type CommonCollector struct {
	metrics *metrics.ClockMetrics
	enabled bool
	name    string
}

// NewCommonCollector creates a new common collector base
func NewCommonCollector(m *metrics.ClockMetrics, name string, enabled bool) *CommonCollector {
	return &CommonCollector{
		metrics: m,
		enabled: enabled,
		name:    name,
	}
}

// Name returns the collector name
func (c *CommonCollector) Name() string {
	return c.name
}

// Enabled returns whether the collector is enabled
func (c *CommonCollector) Enabled() bool {
	return c.enabled
}

// GetMetrics returns the metric set
func (c *CommonCollector) GetMetrics() *metrics.ClockMetrics {
	return c.metrics
}

// observe records the duration and outcome of one run
func (c *CommonCollector) observe(start time.Time, err error) {
	d := time.Since(start)
	c.metrics.CollectorDurationSeconds.WithLabelValues(c.name).Observe(d.Seconds())

	status := "success"
	if err != nil {
		status = "failure"
	}
	c.metrics.CollectionsTotal.WithLabelValues(c.name, status).Inc()
	logger.Metric(c.name, "", d, err == nil)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ageSeconds converts a microsecond age to seconds, keeping -1 for never
func ageSeconds(us int64) float64 {
	if us < 0 {
		return -1
	}
	return float64(us) / 1e6
}
