package reference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/mathutil"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnsynchronized is returned while the disciplined clock is INVALID
	ErrUnsynchronized = errors.New("reference: clock not synchronized")

	// ErrSuspicious is returned for a reply failing sanity checks
	ErrSuspicious = errors.New("reference: suspicious reply")
)

// TimeSource is the disciplined clock being checked
type TimeSource interface {
	Now() int64
	Quality() discipline.Quality
}

// Sample is one comparison against a reference server
type Sample struct {
	Server string
	// Divergence is disciplined time minus reference time
	Divergence time.Duration
	RTT        time.Duration
	Stratum    uint8
	At         time.Time
}

// Stats summarizes the recent samples of one server
type Stats struct {
	Server    string
	Samples   int
	Last      Sample
	Mean      time.Duration
	Median    time.Duration
	StdDev    time.Duration
	Checks    uint64
	Failures  uint64
	LastError string
}

type history struct {
	samples  []Sample
	next     int
	checks   uint64
	failures uint64
	lastErr  string
}

// Checker compares the disciplined clock with NTP servers. Results are
// only reported, never fed back into the clock.
type Checker struct {
	querier Querier
	source  TimeSource
	servers []string
	size    int
	wall    func() time.Time

	mu      sync.RWMutex
	results map[string]*history
}

// NewChecker creates a checker keeping up to size samples per server
func NewChecker(querier Querier, source TimeSource, servers []string, size int) *Checker {
	if size <= 0 {
		size = DefaultHistory
	}
	return &Checker{
		querier: querier,
		source:  source,
		servers: append([]string(nil), servers...),
		size:    size,
		wall:    time.Now,
		results: make(map[string]*history, len(servers)),
	}
}

// Servers returns the configured servers
func (c *Checker) Servers() []string {
	return append([]string(nil), c.servers...)
}

// Check queries server once and records the divergence
func (c *Checker) Check(ctx context.Context, server string) (Sample, error) {
	if c.source.Quality() == discipline.Invalid {
		c.fail(server, ErrUnsynchronized)
		return Sample{}, ErrUnsynchronized
	}

	resp, err := c.querier.Query(ctx, server)
	if err != nil {
		c.fail(server, err)
		return Sample{}, err
	}
	if resp.Suspicious() {
		err := fmt.Errorf("%w: stratum %d kiss %q", ErrSuspicious, resp.Stratum, resp.KissCode)
		c.fail(server, err)
		return Sample{}, err
	}

	// Read both clocks back to back so the reply offset applies to the
	// same instant.
	wall := c.wall()
	local := c.source.Now()
	ref := wall.Add(resp.Offset).UnixMicro()

	s := Sample{
		Server:     server,
		Divergence: time.Duration(local-ref) * time.Microsecond,
		RTT:        resp.RTT,
		Stratum:    resp.Stratum,
		At:         wall,
	}
	c.record(s)

	logger.Reference("check", server, map[string]interface{}{
		"divergence_us": local - ref,
		"rtt":           resp.RTT.Seconds(),
		"stratum":       resp.Stratum,
	})

	return s, nil
}

// CheckAll checks every server concurrently and joins the failures
func (c *Checker) CheckAll(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, server := range c.servers {
		g.Go(func() error {
			if _, err := c.Check(gctx, server); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", server, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Stats returns the summary for server
func (c *Checker) Stats(server string) (Stats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.results[server]
	if !ok {
		return Stats{}, false
	}
	return summarize(server, h), true
}

// AllStats returns the summary of every server checked so far
func (c *Checker) AllStats() []Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Stats, 0, len(c.results))
	for _, server := range c.servers {
		if h, ok := c.results[server]; ok {
			out = append(out, summarize(server, h))
		}
	}
	return out
}

func (c *Checker) entry(server string) *history {
	h, ok := c.results[server]
	if !ok {
		h = &history{samples: make([]Sample, 0, c.size)}
		c.results[server] = h
	}
	return h
}

func (c *Checker) record(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.entry(s.Server)
	h.checks++
	h.lastErr = ""
	if len(h.samples) < c.size {
		h.samples = append(h.samples, s)
		h.next = len(h.samples) % c.size
		return
	}
	h.samples[h.next] = s
	h.next = (h.next + 1) % c.size
}

func (c *Checker) fail(server string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.entry(server)
	h.checks++
	h.failures++
	h.lastErr = err.Error()
}

func summarize(server string, h *history) Stats {
	st := Stats{
		Server:    server,
		Samples:   len(h.samples),
		Checks:    h.checks,
		Failures:  h.failures,
		LastError: h.lastErr,
	}
	if len(h.samples) == 0 {
		return st
	}

	last := h.next - 1
	if last < 0 {
		last = len(h.samples) - 1
	}
	st.Last = h.samples[last]

	secs := make([]float64, len(h.samples))
	for i, s := range h.samples {
		secs[i] = s.Divergence.Seconds()
	}
	st.Mean = seconds(mathutil.Mean(secs))
	st.Median = seconds(mathutil.Median(secs))
	st.StdDev = seconds(mathutil.StdDev(secs))
	return st
}

func seconds(f float64) time.Duration {
	return time.Duration(math.Round(f * float64(time.Second)))
}
