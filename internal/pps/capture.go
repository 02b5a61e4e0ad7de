// Package pps records the hardware counter value at each pulse-per-second
// edge.
package pps

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/maximewewer/gps-clock/internal/hwclock"
)

// ErrUnsupported is returned by edge sources on platforms without GPIO
// character devices.
var ErrUnsupported = errors.New("pps: gpio edge source not supported on this platform")

const noEdge = math.MinInt64

// Capture holds the most recent edge instant. OnEdge is a single atomic
// store and is safe to call from an interrupt-like event handler while
// readers run concurrently.
type Capture struct {
	counter hwclock.Counter
	last    atomic.Int64
	edges   atomic.Uint64
}

// NewCapture creates a capture with no edge recorded
func NewCapture(counter hwclock.Counter) *Capture {
	c := &Capture{counter: counter}
	c.last.Store(noEdge)
	return c
}

// OnEdge records an edge observed at the given instant
func (c *Capture) OnEdge(at hwclock.Instant) {
	c.last.Store(int64(at))
	c.edges.Add(1)
}

// OnEdgeNow records an edge at the current counter value
func (c *Capture) OnEdgeNow() {
	c.OnEdge(c.counter.Now())
}

// Last returns the instant of the latest edge. ok is false until the first
// edge arrives.
func (c *Capture) Last() (hwclock.Instant, bool) {
	v := c.last.Load()
	if v == noEdge {
		return 0, false
	}
	return hwclock.Instant(v), true
}

// Edges returns the number of edges seen since start
func (c *Capture) Edges() uint64 {
	return c.edges.Load()
}

// SourceConfig selects the GPIO line carrying the PPS signal
type SourceConfig struct {
	// Chip is a gpiochip path or name. Empty scans every /dev/gpiochip*.
	Chip string
	// Line is a line name (e.g. "GPIO18") or a decimal offset
	Line        string
	FallingEdge bool
	Consumer    string
}

// Source delivers edges into a Capture until closed
type Source interface {
	Close() error
}
