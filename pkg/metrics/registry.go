package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry manages Prometheus metric registration
type Registry struct {
	registry *prometheus.Registry
	metrics  *ClockMetrics
}

// NewRegistry creates a registry with the default namespace "gpsclock"
func NewRegistry() *Registry {
	return NewRegistryWithConfig("gpsclock", "")
}

// NewRegistryWithConfig creates a registry with custom namespace and subsystem
func NewRegistryWithConfig(namespace, subsystem string) *Registry {
	return &Registry{
		registry: prometheus.NewRegistry(),
		metrics:  NewClockMetricsWithConfig(namespace, subsystem),
	}
}

// Register registers the clock metrics and the Go runtime collectors
func (r *Registry) Register() error {
	if err := r.registry.Register(r.metrics); err != nil {
		return err
	}

	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return nil
}

// GetRegistry returns the underlying Prometheus registry
func (r *Registry) GetRegistry() *prometheus.Registry {
	return r.registry
}

// GetMetrics returns the clock metrics
func (r *Registry) GetMetrics() *ClockMetrics {
	return r.metrics
}

// MustRegister registers all metrics and panics on error
func (r *Registry) MustRegister() {
	if err := r.Register(); err != nil {
		panic(err)
	}
}
