package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maximewewer/gps-clock/pkg/logger"
)

// Collector refreshes one group of clock gauges from live state.
type Collector interface {
	Collect(ctx context.Context) error
	Name() string
	Enabled() bool
}

// Registry holds collectors that share a refresh cadence. The daemon keeps
// one for the fast discipline/receiver/output gauges and one for the
// slower reference cross-checks.
type Registry struct {
	collectors []Collector
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(c Collector) {
	r.collectors = append(r.collectors, c)
}

// CollectAll runs every enabled collector in registration order. A failing
// collector does not stop the others; all failures are joined.
func (r *Registry) CollectAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.collectors {
		if !c.Enabled() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := c.Collect(ctx); err != nil {
			logger.SafeWarn("collector", "Collection failed", map[string]interface{}{
				"collector": c.Name(),
				"error":     err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Run collects once straight away, then on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = r.CollectAll(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Names lists registered collectors, enabled or not.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collectors))
	for _, c := range r.collectors {
		names = append(names, c.Name())
	}
	return names
}

func (r *Registry) Count() int {
	return len(r.collectors)
}

func (r *Registry) EnabledCount() int {
	n := 0
	for _, c := range r.collectors {
		if c.Enabled() {
			n++
		}
	}
	return n
}
