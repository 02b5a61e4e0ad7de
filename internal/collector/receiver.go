package collector

import (
	"context"
	"time"

	"github.com/maximewewer/gps-clock/internal/receiver"
	"github.com/maximewewer/gps-clock/pkg/metrics"
	"github.com/sony/gobreaker"
)

// PortStats is the serial port view used for metrics
type PortStats interface {
	State() gobreaker.State
	Opens() uint64
	OpenFailures() uint64
	BytesRead() uint64
}

// ReceiverCollector exports frame counters and serial port health
type ReceiverCollector struct {
	*CommonCollector
	rx   *receiver.Receiver
	port PortStats
}

// NewReceiverCollector creates the collector. port may be nil.
func NewReceiverCollector(rx *receiver.Receiver, port PortStats, m *metrics.ClockMetrics) *ReceiverCollector {
	return &ReceiverCollector{
		CommonCollector: NewCommonCollector(m, "receiver", true),
		rx:              rx,
		port:            port,
	}
}

// Collect copies the cumulative receiver counters
func (c *ReceiverCollector) Collect(ctx context.Context) error {
	start := time.Now()
	m := c.GetMetrics()

	st := c.rx.Stats()
	for protocol, n := range st.Accepted {
		m.FramesAccepted.WithLabelValues(protocol).Set(float64(n))
	}
	for protocol, n := range st.Ignored {
		m.FramesIgnored.WithLabelValues(protocol).Set(float64(n))
	}
	for protocol, reasons := range st.Rejected {
		for reason, n := range reasons {
			m.FramesRejected.WithLabelValues(protocol, reason).Set(float64(n))
		}
	}
	m.AccuracyReports.Set(float64(st.AccuracyReports))

	if c.port != nil {
		m.SerialOpens.Set(float64(c.port.Opens()))
		m.SerialFailures.Set(float64(c.port.OpenFailures()))
		m.SerialBytesRead.Set(float64(c.port.BytesRead()))
		m.SerialBreaker.Set(float64(c.port.State()))
	}

	c.observe(start, nil)
	return nil
}
