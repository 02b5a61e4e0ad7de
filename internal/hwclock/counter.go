// Package hwclock provides the free-running microsecond counter that the
// discipline engine measures UTC against.
package hwclock

import (
	"sync/atomic"
	"time"
)

// Instant is a monotonic microsecond count since an arbitrary epoch (boot on
// Linux). It never wraps within the lifetime of the process.
type Instant int64

// Sub returns i-j in microseconds
func (i Instant) Sub(j Instant) int64 {
	return int64(i - j)
}

// Duration converts the instant to a duration since the counter epoch
func (i Instant) Duration() time.Duration {
	return time.Duration(i) * time.Microsecond
}

// FromDuration converts a duration since the counter epoch to an Instant
func FromDuration(d time.Duration) Instant {
	return Instant(d / time.Microsecond)
}

// Counter reads the hardware time base
type Counter interface {
	Now() Instant
}

var processStart = time.Now()

// sinceStart is used where no kernel monotonic clock is available
func sinceStart() Instant {
	return FromDuration(time.Since(processStart))
}

// Monotonic reads the system monotonic clock. On Linux this is
// CLOCK_MONOTONIC, the same base as GPIO line event timestamps.
type Monotonic struct{}

// NewMonotonic returns the platform monotonic counter
func NewMonotonic() Monotonic {
	return Monotonic{}
}

// Now returns the current counter value
func (Monotonic) Now() Instant {
	return monotonicNow()
}

// Manual is a counter driven by the caller. Used for replay and tests.
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual counter positioned at start
func NewManual(start Instant) *Manual {
	m := &Manual{}
	m.now.Store(int64(start))
	return m
}

// Now returns the current counter value
func (m *Manual) Now() Instant {
	return Instant(m.now.Load())
}

// Set moves the counter to i
func (m *Manual) Set(i Instant) {
	m.now.Store(int64(i))
}

// Advance moves the counter forward by d and returns the new value
func (m *Manual) Advance(d time.Duration) Instant {
	return Instant(m.now.Add(int64(d / time.Microsecond)))
}
