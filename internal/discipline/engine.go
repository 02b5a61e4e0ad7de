package discipline

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maximewewer/gps-clock/internal/hwclock"
)

// ErrPPSStale is returned under PolicyRequirePPS when no recent edge exists
var ErrPPSStale = errors.New("discipline: pps edge absent or stale")

// Policy selects how a message without a recent PPS edge is handled
type Policy uint8

const (
	// PolicyFallback aligns to message arrival when the PPS is stale
	PolicyFallback Policy = iota
	// PolicyRequirePPS rejects fusions without a recent PPS edge
	PolicyRequirePPS
)

func (p Policy) String() string {
	if p == PolicyRequirePPS {
		return "require_pps"
	}
	return "fallback"
}

// ParsePolicy maps a config value to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fallback":
		return PolicyFallback, nil
	case "require_pps":
		return PolicyRequirePPS, nil
	default:
		return PolicyFallback, fmt.Errorf("discipline: unknown policy %q", s)
	}
}

// PPSReference exposes the most recent PPS edge
type PPSReference interface {
	Last() (hwclock.Instant, bool)
}

// State is the immutable discipline state. A new value is swapped in per
// update so readers always see offset and accuracy from the same update.
type State struct {
	Offset        int64
	Synced        bool
	AccuracyNanos uint32
	LastMessage   hwclock.Instant
	LastDelta     int64
	Fusions       uint64
	Alignment     Alignment
}

// Status is a point-in-time view of the engine for consumers
type Status struct {
	State
	Now     hwclock.Instant
	UTC     int64
	Quality Quality
	// Ages in microseconds, -1 when never seen
	MessageAge int64
	PPSAge     int64
}

// Engine owns the disciplined offset
type Engine struct {
	counter hwclock.Counter
	pps     PPSReference
	window  time.Duration
	policy  Policy
	state   atomic.Pointer[State]
}

// Option configures an Engine
type Option func(*Engine)

// WithPolicy sets the stale PPS policy
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithPPSWindow sets the recency window for PPS edges and messages
func WithPPSWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// NewEngine creates an unsynchronized engine
func NewEngine(counter hwclock.Counter, pps PPSReference, opts ...Option) *Engine {
	e := &Engine{
		counter: counter,
		pps:     pps,
		window:  DefaultPPSWindow,
		policy:  PolicyFallback,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Store(&State{AccuracyNanos: AccuracyUnknown})
	return e
}

// Policy returns the configured policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Window returns the recency window
func (e *Engine) Window() time.Duration {
	return e.window
}

// Fuse applies a reading received now
func (e *Engine) Fuse(r Reading) (Result, int64, error) {
	return e.FuseAt(r, e.counter.Now())
}

// FuseAt applies a reading that arrived at the given counter instant. It
// returns the new offset and the signed change from the previous one. On
// error nothing is mutated.
func (e *Engine) FuseAt(r Reading, now hwclock.Instant) (Result, int64, error) {
	pps, ppsValid := e.pps.Last()
	if e.policy == PolicyRequirePPS && !ppsRecent(now, pps, ppsValid, e.window) {
		return Result{}, 0, ErrPPSStale
	}
	res := Fuse(r, now, pps, ppsValid, e.window)

	for {
		old := e.state.Load()
		next := *old
		next.Offset = res.Offset
		next.Synced = true
		next.LastMessage = now
		next.Fusions++
		next.Alignment = res.Alignment
		next.LastDelta = 0
		if old.Synced {
			next.LastDelta = res.Offset - old.Offset
		}
		if r.HasAccuracy {
			next.AccuracyNanos = r.AccuracyNanos
		}
		if e.state.CompareAndSwap(old, &next) {
			return res, next.LastDelta, nil
		}
	}
}

// ReportAccuracy stores a receiver accuracy estimate without touching the
// offset
func (e *Engine) ReportAccuracy(ns uint32) {
	for {
		old := e.state.Load()
		if old.AccuracyNanos == ns {
			return
		}
		next := *old
		next.AccuracyNanos = ns
		if e.state.CompareAndSwap(old, &next) {
			return
		}
	}
}

// State returns the current state value
func (e *Engine) State() State {
	return *e.state.Load()
}

// CurrentTime returns UTC in microseconds. Before the first fusion this is
// the raw counter.
func (e *Engine) CurrentTime() int64 {
	s := e.state.Load()
	return int64(e.counter.Now()) + s.Offset
}

// Quality classifies the current confidence from elapsed times
func (e *Engine) Quality() Quality {
	return e.Snapshot().Quality
}

// Accuracy returns the last reported accuracy in nanoseconds, or
// AccuracyUnknown
func (e *Engine) Accuracy() uint32 {
	return e.state.Load().AccuracyNanos
}

// Snapshot returns a consistent view of the state with derived values
func (e *Engine) Snapshot() Status {
	s := e.state.Load()
	now := e.counter.Now()

	st := Status{
		State:      *s,
		Now:        now,
		UTC:        int64(now) + s.Offset,
		MessageAge: -1,
		PPSAge:     -1,
	}
	if s.Synced {
		st.MessageAge = now.Sub(s.LastMessage)
	}
	if pps, ok := e.pps.Last(); ok {
		st.PPSAge = now.Sub(pps)
	}
	st.Quality = classify(s.Synced, st.MessageAge, st.PPSAge, e.window.Microseconds())
	return st
}
