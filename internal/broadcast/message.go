// Package broadcast pushes the per-second clock ticks to network listeners:
// a UDP datagram stream and websocket clients.
package broadcast

import (
	"fmt"

	"github.com/maximewewer/gps-clock/internal/clock"
)

// Message is the JSON form of a tick
type Message struct {
	Time        string `json:"time"`
	UTCMicros   int64  `json:"utc_us"`
	Quality     string `json:"quality"`
	AccuracyNs  uint32 `json:"accuracy_ns"`
	ZoneApplied bool   `json:"zone_applied"`
}

// NewMessage converts a tick
func NewMessage(t clock.Tick) Message {
	return Message{
		Time:        t.Local.String(),
		UTCMicros:   t.UTC,
		Quality:     t.Quality,
		AccuracyNs:  t.AccuracyNanos,
		ZoneApplied: t.ZoneApplied,
	}
}

// FormatLine renders the datagram text: local time then quality
func FormatLine(t clock.Tick) []byte {
	return []byte(fmt.Sprintf("%s %s\n", t.Local.String(), t.Quality))
}
