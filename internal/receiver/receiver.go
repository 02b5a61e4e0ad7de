// Package receiver routes the GPS receiver byte stream through the frame
// assemblers and parsers into the discipline engine.
package receiver

import (
	"errors"
	"sync"
	"time"

	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/internal/frame"
	"github.com/maximewewer/gps-clock/internal/nmea"
	"github.com/maximewewer/gps-clock/internal/ubx"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"golang.org/x/time/rate"
)

// Protocol labels
const (
	ProtocolNMEA = "nmea"
	ProtocolUBX  = "ubx"
)

// Reject reasons
const (
	ReasonChecksum   = "checksum"
	ReasonFormat     = "format"
	ReasonField      = "field"
	ReasonLength     = "length"
	ReasonInvalidFix = "invalid_fix"
	ReasonPPSStale   = "pps_stale"
)

// Sink receives parsed time. *discipline.Engine implements it.
type Sink interface {
	Fuse(r discipline.Reading) (discipline.Result, int64, error)
	ReportAccuracy(ns uint32)
}

// Fusion describes one accepted reading
type Fusion struct {
	Protocol string
	Reading  discipline.Reading
	Result   discipline.Result
	Delta    int64
}

// Stats are cumulative frame counters
type Stats struct {
	Accepted        map[string]uint64
	Ignored         map[string]uint64
	Rejected        map[string]map[string]uint64
	Fusions         uint64
	AccuracyReports uint64
}

// Receiver implements io.Writer over the raw receiver stream. Every byte
// goes to both assemblers. Bad frames are counted and dropped.
type Receiver struct {
	sink     Sink
	nmea     *frame.NMEAAssembler
	ubx      *frame.UBXAssembler
	onFusion func(Fusion)

	mu    sync.Mutex
	stats Stats

	rejectLog rate.Sometimes
}

// Option configures a Receiver
type Option func(*Receiver)

// WithFusionHook registers a callback invoked after each accepted fusion
func WithFusionHook(fn func(Fusion)) Option {
	return func(r *Receiver) { r.onFusion = fn }
}

// WithRejectLogInterval throttles reject logging to one line per interval
func WithRejectLogInterval(d time.Duration) Option {
	return func(r *Receiver) { r.rejectLog = rate.Sometimes{Interval: d} }
}

// New creates a receiver feeding sink
func New(sink Sink, opts ...Option) *Receiver {
	r := &Receiver{
		sink:      sink,
		nmea:      frame.NewNMEAAssembler(),
		ubx:       frame.NewUBXAssembler(),
		rejectLog: rate.Sometimes{Interval: 5 * time.Second},
		stats: Stats{
			Accepted: map[string]uint64{},
			Ignored:  map[string]uint64{},
			Rejected: map[string]map[string]uint64{
				ProtocolNMEA: {},
				ProtocolUBX:  {},
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Write feeds bytes into the assemblers. It never fails.
func (r *Receiver) Write(p []byte) (int, error) {
	for _, b := range p {
		if f, ok := r.nmea.Feed(b); ok {
			r.handleNMEA(f)
		}
		if f, ok := r.ubx.Feed(b); ok {
			r.handleUBX(f)
		}
	}
	return len(p), nil
}

// Reset abandons any partially assembled frames, e.g. after a reopen
func (r *Receiver) Reset() {
	r.nmea.Reset()
	r.ubx.Reset()
}

func (r *Receiver) handleNMEA(f []byte) {
	s, err := nmea.Parse(f)
	if err != nil {
		r.reject(ProtocolNMEA, nmeaReason(err), err)
		return
	}
	rmc, err := nmea.ParseRMC(s)
	if errors.Is(err, nmea.ErrNotRMC) {
		r.ignore(ProtocolNMEA)
		return
	}
	if err != nil {
		r.reject(ProtocolNMEA, ReasonField, err)
		return
	}
	r.fuse(ProtocolNMEA, discipline.ReadingFromCalendar(rmc.Calendar(), rmc.FractionNanos))
}

func (r *Receiver) handleUBX(f []byte) {
	p, err := ubx.Decode(f)
	if err != nil {
		r.reject(ProtocolUBX, ubxReason(err), err)
		return
	}

	switch {
	case p.Is(ubx.ClassNAV, ubx.IDNavTimeUTC):
		m, err := ubx.ParseTimeUTC(p)
		if err != nil {
			r.reject(ProtocolUBX, ubxReason(err), err)
			return
		}
		if !m.UTCValid() {
			r.reject(ProtocolUBX, ReasonInvalidFix, nil)
			return
		}
		cal := m.Calendar()
		if !cal.Valid() {
			r.reject(ProtocolUBX, ReasonField, nil)
			return
		}
		reading := discipline.ReadingFromCalendar(cal, int64(m.Nano))
		reading.AccuracyNanos = m.TAcc
		reading.HasAccuracy = true
		r.fuse(ProtocolUBX, reading)

	case p.Is(ubx.ClassNAV, ubx.IDNavClock):
		m, err := ubx.ParseClock(p)
		if err != nil {
			r.reject(ProtocolUBX, ubxReason(err), err)
			return
		}
		r.sink.ReportAccuracy(m.TAcc)
		r.mu.Lock()
		r.stats.Accepted[ProtocolUBX]++
		r.stats.AccuracyReports++
		r.mu.Unlock()
		logger.Frame(ProtocolUBX, true, "")

	default:
		r.ignore(ProtocolUBX)
	}
}

func (r *Receiver) fuse(protocol string, reading discipline.Reading) {
	res, delta, err := r.sink.Fuse(reading)
	if err != nil {
		r.reject(protocol, ReasonPPSStale, err)
		return
	}

	r.mu.Lock()
	r.stats.Accepted[protocol]++
	r.stats.Fusions++
	r.mu.Unlock()

	logger.Frame(protocol, true, "")
	if r.onFusion != nil {
		r.onFusion(Fusion{Protocol: protocol, Reading: reading, Result: res, Delta: delta})
	}
}

func (r *Receiver) ignore(protocol string) {
	r.mu.Lock()
	r.stats.Ignored[protocol]++
	r.mu.Unlock()
}

func (r *Receiver) reject(protocol, reason string, err error) {
	r.mu.Lock()
	r.stats.Rejected[protocol][reason]++
	r.mu.Unlock()

	logger.Frame(protocol, false, reason)
	r.rejectLog.Do(func() {
		logger.SafeWarn("receiver", "Dropped receiver frame", map[string]interface{}{
			"protocol": protocol,
			"reason":   reason,
			"error":    errString(err),
		})
	})
}

// Stats returns a copy of the counters
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Stats{
		Accepted:        copyCounts(r.stats.Accepted),
		Ignored:         copyCounts(r.stats.Ignored),
		Rejected:        make(map[string]map[string]uint64, len(r.stats.Rejected)),
		Fusions:         r.stats.Fusions,
		AccuracyReports: r.stats.AccuracyReports,
	}
	for p, m := range r.stats.Rejected {
		out.Rejected[p] = copyCounts(m)
	}
	return out
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nmeaReason(err error) string {
	switch {
	case errors.Is(err, nmea.ErrChecksum):
		return ReasonChecksum
	case errors.Is(err, nmea.ErrBadField):
		return ReasonField
	default:
		return ReasonFormat
	}
}

func ubxReason(err error) string {
	switch {
	case errors.Is(err, ubx.ErrChecksum):
		return ReasonChecksum
	case errors.Is(err, ubx.ErrLength):
		return ReasonLength
	default:
		return ReasonFormat
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
