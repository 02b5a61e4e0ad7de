package collector

import (
	"context"
	"time"

	"github.com/maximewewer/gps-clock/pkg/metrics"
)

// SendCounter reports datagram send outcomes
type SendCounter interface {
	Sent() uint64
	Errors() uint64
}

// ClientCounter reports connected clients
type ClientCounter interface {
	Clients() int
}

// OutputsCollector exports the time distribution counters
type OutputsCollector struct {
	*CommonCollector
	udp SendCounter
	ws  ClientCounter
}

// NewOutputsCollector creates the collector. Either output may be nil.
func NewOutputsCollector(udp SendCounter, ws ClientCounter, m *metrics.ClockMetrics) *OutputsCollector {
	return &OutputsCollector{
		CommonCollector: NewCommonCollector(m, "outputs", udp != nil || ws != nil),
		udp:             udp,
		ws:              ws,
	}
}

// Collect copies the output counters
func (c *OutputsCollector) Collect(ctx context.Context) error {
	start := time.Now()
	m := c.GetMetrics()

	if c.udp != nil {
		m.BroadcastSent.Set(float64(c.udp.Sent()))
		m.BroadcastErrors.Set(float64(c.udp.Errors()))
	}
	if c.ws != nil {
		m.WebSocketClients.Set(float64(c.ws.Clients()))
	}

	c.observe(start, nil)
	return nil
}
