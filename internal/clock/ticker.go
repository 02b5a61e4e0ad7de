package clock

import (
	"context"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"golang.org/x/time/rate"
)

// TopicSecond is published once per displayed second with a Tick
const TopicSecond = "clock:second"

// DefaultRefresh matches the display refresh loop of the hardware clock
const DefaultRefresh = time.Millisecond

// Tick is the per-second event
type Tick struct {
	Local         calendar.CalendarTime
	UTC           int64
	Quality       string
	AccuracyNanos uint32
	ZoneApplied   bool
}

// Renderer draws one projected time, typically on the LED display
type Renderer interface {
	Render(lt LocalTime) error
}

// Ticker refreshes the renderer and publishes second boundaries
type Ticker struct {
	clock    *Clock
	renderer Renderer
	bus      evbus.Bus
	interval time.Duration

	lastSecond int64
	started    bool
	errLog     rate.Sometimes
}

// NewTicker creates a ticker. A nil renderer only publishes events.
func NewTicker(c *Clock, renderer Renderer, bus evbus.Bus, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	return &Ticker{
		clock:    c,
		renderer: renderer,
		bus:      bus,
		interval: interval,
		errLog:   rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Run refreshes until the context is cancelled
func (t *Ticker) Run(ctx context.Context) error {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	logger.Infof("clock", "Refresh loop started (interval %s)", t.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("clock", "Refresh loop stopped")
			return nil
		case <-tk.C:
			t.Step()
		}
	}
}

// Step renders once and publishes a Tick when the second changed. It
// reports whether a Tick was published.
func (t *Ticker) Step() bool {
	lt := t.clock.Local()

	if t.renderer != nil {
		if err := t.renderer.Render(lt); err != nil {
			t.errLog.Do(func() {
				logger.Error("clock", "Render failed", err)
			})
		}
	}

	sec := floorSecond(lt.UTC)
	if t.started && sec == t.lastSecond {
		return false
	}
	t.started = true
	t.lastSecond = sec

	if t.bus != nil {
		t.bus.Publish(TopicSecond, Tick{
			Local:         lt.Calendar,
			UTC:           lt.UTC,
			Quality:       lt.Quality.String(),
			AccuracyNanos: lt.AccuracyNanos,
			ZoneApplied:   lt.ZoneApplied,
		})
	}
	return true
}

func floorSecond(us int64) int64 {
	s := us / calendar.MicrosPerSecond
	if us%calendar.MicrosPerSecond < 0 {
		s--
	}
	return s
}
