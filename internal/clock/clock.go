// Package clock exposes the disciplined time to the display, the network
// services and the metrics collectors.
package clock

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/internal/discipline"
)

// Settings bounds
const (
	MinTimeZone   = -12
	MaxTimeZone   = 14
	MaxBrightness = 127

	DefaultBrightness = 64
)

var ErrSettings = errors.New("clock: invalid settings")

// Settings are the user-adjustable values persisted across restarts
type Settings struct {
	TimeZoneHours int   `json:"time_zone"`
	Brightness    uint8 `json:"brightness"`
}

// DefaultSettings returns UTC at mid brightness
func DefaultSettings() Settings {
	return Settings{Brightness: DefaultBrightness}
}

// Validate checks the time zone and brightness ranges
func (s Settings) Validate() error {
	if s.TimeZoneHours < MinTimeZone || s.TimeZoneHours > MaxTimeZone {
		return fmt.Errorf("%w: time zone %d outside %d..%d", ErrSettings, s.TimeZoneHours, MinTimeZone, MaxTimeZone)
	}
	if s.Brightness > MaxBrightness {
		return fmt.Errorf("%w: brightness %d above %d", ErrSettings, s.Brightness, MaxBrightness)
	}
	return nil
}

// OffsetMicros returns the time zone as a microsecond offset
func (s Settings) OffsetMicros() int64 {
	return int64(s.TimeZoneHours) * 3600 * calendar.MicrosPerSecond
}

// LocalTime is one projection of the disciplined time
type LocalTime struct {
	Calendar      calendar.CalendarTime
	UTC           int64
	Quality       discipline.Quality
	AccuracyNanos uint32
	// ZoneApplied is false while the time is unsynchronized
	ZoneApplied bool
	Settings    Settings
}

// Clock wraps the discipline engine with the live settings
type Clock struct {
	engine   *discipline.Engine
	settings atomic.Pointer[Settings]
}

// New creates a clock. Invalid settings are replaced by the defaults.
func New(engine *discipline.Engine, settings Settings) *Clock {
	c := &Clock{engine: engine}
	if settings.Validate() != nil {
		settings = DefaultSettings()
	}
	c.settings.Store(&settings)
	return c
}

// Engine returns the underlying discipline engine
func (c *Clock) Engine() *discipline.Engine {
	return c.engine
}

// Now returns the disciplined UTC instant in microseconds
func (c *Clock) Now() int64 {
	return c.engine.CurrentTime()
}

// Quality returns the current time quality
func (c *Clock) Quality() discipline.Quality {
	return c.engine.Quality()
}

// AccuracyNanos returns the receiver accuracy estimate, or
// discipline.AccuracyUnknown
func (c *Clock) AccuracyNanos() uint32 {
	return c.engine.Accuracy()
}

// Calendar splits an instant into calendar fields
func (c *Clock) Calendar(us int64) calendar.CalendarTime {
	return calendar.Split(us)
}

// Settings returns the live settings
func (c *Clock) Settings() Settings {
	return *c.settings.Load()
}

// SetSettings validates and applies new settings
func (c *Clock) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.settings.Store(&s)
	return nil
}

// Local projects the current time. The time zone is applied only once the
// clock has been synchronized, so a shifted boot timer is never shown.
func (c *Clock) Local() LocalTime {
	return c.LocalAt(c.engine.Snapshot())
}

// LocalAt projects a snapshot the caller already holds, so the calendar and
// the engine fields it reports agree.
func (c *Clock) LocalAt(st discipline.Status) LocalTime {
	s := c.Settings()
	lt := LocalTime{
		UTC:           st.UTC,
		Quality:       st.Quality,
		AccuracyNanos: st.AccuracyNanos,
		Settings:      s,
	}
	us := st.UTC
	if st.Quality != discipline.Invalid {
		us += s.OffsetMicros()
		lt.ZoneApplied = true
	}
	lt.Calendar = calendar.Split(us)
	return lt
}
