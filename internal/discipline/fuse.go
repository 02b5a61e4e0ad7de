// Package discipline fuses absolute receiver time with the PPS edge and the
// free-running counter into a UTC offset.
package discipline

import (
	"time"

	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/internal/hwclock"
)

// Alignment names the counter instant a fusion was anchored to
type Alignment uint8

const (
	// AlignNone is reported before the first fusion
	AlignNone Alignment = iota
	// AlignPPS anchors the whole second to the last PPS edge
	AlignPPS
	// AlignArrival anchors to message arrival plus the message fraction
	AlignArrival
)

func (a Alignment) String() string {
	switch a {
	case AlignPPS:
		return "pps"
	case AlignArrival:
		return "arrival"
	default:
		return "none"
	}
}

// Reading is one parsed absolute time from the receiver
type Reading struct {
	// EpochMicros is the whole UTC second, in microseconds since 1970
	EpochMicros int64
	// FractionNanos is the sub-second part carried by the message. It may
	// be negative for UBX solutions.
	FractionNanos int64
	// AccuracyNanos is stored with the offset when HasAccuracy is set
	AccuracyNanos uint32
	HasAccuracy   bool
}

// ReadingFromCalendar builds a reading from whole-second calendar fields
func ReadingFromCalendar(c calendar.CalendarTime, fractionNanos int64) Reading {
	c.Millisecond = 0
	return Reading{
		EpochMicros:   calendar.Compose(c),
		FractionNanos: fractionNanos,
	}
}

// Result is the outcome of one fusion
type Result struct {
	Offset    int64
	Alignment Alignment
}

// Fuse computes the offset such that UTC = counter + offset.
//
// A PPS edge younger than window marks the exact top of the parsed second,
// so the message fraction is ignored. Otherwise the arrival instant plus the
// message fraction is used.
func Fuse(r Reading, now, pps hwclock.Instant, ppsValid bool, window time.Duration) Result {
	if ppsRecent(now, pps, ppsValid, window) {
		return Result{
			Offset:    r.EpochMicros - int64(pps),
			Alignment: AlignPPS,
		}
	}
	return Result{
		Offset:    r.EpochMicros + r.FractionNanos/1000 - int64(now),
		Alignment: AlignArrival,
	}
}

func ppsRecent(now, pps hwclock.Instant, ppsValid bool, window time.Duration) bool {
	if !ppsValid {
		return false
	}
	age := now.Sub(pps)
	return age >= 0 && age < window.Microseconds()
}
