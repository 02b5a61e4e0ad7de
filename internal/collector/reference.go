package collector

import (
	"context"
	"time"

	"github.com/maximewewer/gps-clock/internal/reference"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/metrics"
)

// ReferenceCollector runs a cross-check round and exports the divergence
// of the disciplined clock from each reference server
type ReferenceCollector struct {
	*CommonCollector
	checker *reference.Checker
}

// NewReferenceCollector creates the collector
func NewReferenceCollector(checker *reference.Checker, enabled bool, m *metrics.ClockMetrics) *ReferenceCollector {
	return &ReferenceCollector{
		CommonCollector: NewCommonCollector(m, "reference", enabled),
		checker:         checker,
	}
}

// Collect checks every server and updates the per-server gauges. Failed
// servers are reported as unreachable, not as a collection failure.
func (c *ReferenceCollector) Collect(ctx context.Context) error {
	start := time.Now()
	m := c.GetMetrics()

	if err := c.checker.CheckAll(ctx); err != nil {
		logger.Debugf("collector", "Reference round incomplete: %v", err)
	}

	for _, st := range c.checker.AllStats() {
		m.ReferenceChecks.WithLabelValues(st.Server).Set(float64(st.Checks))
		m.ReferenceFailures.WithLabelValues(st.Server).Set(float64(st.Failures))
		m.ReferenceReachable.WithLabelValues(st.Server).Set(boolGauge(st.LastError == "" && st.Samples > 0))

		if st.Samples == 0 {
			continue
		}
		m.ReferenceDivergenceSeconds.WithLabelValues(st.Server).Set(st.Last.Divergence.Seconds())
		m.ReferenceMeanSeconds.WithLabelValues(st.Server).Set(st.Mean.Seconds())
		m.ReferenceStdDevSeconds.WithLabelValues(st.Server).Set(st.StdDev.Seconds())
		m.ReferenceRTTSeconds.WithLabelValues(st.Server).Set(st.Last.RTT.Seconds())
		m.ReferenceStratum.WithLabelValues(st.Server).Set(float64(st.Last.Stratum))
	}

	c.observe(start, ctx.Err())
	return ctx.Err()
}
