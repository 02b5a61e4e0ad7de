package collector

import (
	"context"
	"time"

	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/pkg/metrics"
)

var (
	qualities  = []discipline.Quality{discipline.Invalid, discipline.Low, discipline.Medium, discipline.High}
	alignments = []discipline.Alignment{discipline.AlignNone, discipline.AlignPPS, discipline.AlignArrival}
)

// EdgeCounter reports captured PPS edges
type EdgeCounter interface {
	Edges() uint64
}

// DisciplineCollector exports the discipline engine state
type DisciplineCollector struct {
	*CommonCollector
	engine *discipline.Engine
	edges  EdgeCounter
}

// NewDisciplineCollector creates the collector. edges may be nil.
func NewDisciplineCollector(engine *discipline.Engine, edges EdgeCounter, m *metrics.ClockMetrics) *DisciplineCollector {
	return &DisciplineCollector{
		CommonCollector: NewCommonCollector(m, "discipline", true),
		engine:          engine,
		edges:           edges,
	}
}

// Collect reads one snapshot so every value comes from the same state
func (c *DisciplineCollector) Collect(ctx context.Context) error {
	start := time.Now()
	m := c.GetMetrics()

	st := c.engine.Snapshot()

	m.OffsetMicroseconds.Set(float64(st.Offset))
	m.LastDeltaMicroseconds.Set(float64(st.LastDelta))
	m.Synced.Set(boolGauge(st.Synced))
	m.Fusions.Set(float64(st.Fusions))
	m.PPSAgeSeconds.Set(ageSeconds(st.PPSAge))
	m.MessageAgeSeconds.Set(ageSeconds(st.MessageAge))

	if st.AccuracyNanos == discipline.AccuracyUnknown {
		m.AccuracyKnown.Set(0)
		m.AccuracySeconds.Set(-1)
	} else {
		m.AccuracyKnown.Set(1)
		m.AccuracySeconds.Set(float64(st.AccuracyNanos) / 1e9)
	}

	for _, q := range qualities {
		m.Quality.WithLabelValues(q.String()).Set(boolGauge(q == st.Quality))
	}
	for _, a := range alignments {
		m.Alignment.WithLabelValues(a.String()).Set(boolGauge(a == st.Alignment))
	}

	if c.edges != nil {
		m.PPSEdges.Set(float64(c.edges.Edges()))
	}

	c.observe(start, nil)
	return nil
}
