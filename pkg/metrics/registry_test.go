package metrics

import (
	"testing"

	testutil "github.com/maximewewer/gps-clock/pkg/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]bool {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.NotNil(t, reg)
	assert.NotNil(t, reg.registry)
	assert.NotNil(t, reg.GetMetrics())
}

func TestRegistry_Register_Idempotent(t *testing.T) {
	reg := NewRegistry()

	assert.NoError(t, reg.Register())
	assert.Error(t, reg.Register())
}

func TestRegistry_MustRegister(t *testing.T) {
	reg := NewRegistry()

	assert.NotPanics(t, func() { reg.MustRegister() })
	assert.Panics(t, func() { reg.MustRegister() })
}

func TestRegistry_MetricsRegistered(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register())

	m := reg.GetMetrics()
	m.OffsetMicroseconds.Set(1.7e15)
	m.Quality.WithLabelValues("HIGH").Set(1)
	m.FramesRejected.WithLabelValues("nmea", "checksum").Set(2)
	m.ReferenceDivergenceSeconds.WithLabelValues("pool.ntp.org").Set(0.0004)
	m.BuildInfo.WithLabelValues("1.0.0", "abc", "go1.24").Set(1)

	names := gatherNames(t, reg.GetRegistry())

	for _, expected := range []string{
		"gpsclock_offset_microseconds",
		"gpsclock_quality",
		"gpsclock_receiver_frames_rejected",
		"gpsclock_reference_divergence_seconds",
		"gpsclock_build_info",
		"go_goroutines",
	} {
		assert.True(t, names[expected], "expected metric %s to be registered", expected)
	}
}

func TestRegistry_ProcessMetricsRegistered(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register())

	names := gatherNames(t, reg.GetRegistry())

	found := 0
	for _, metric := range []string{"process_cpu_seconds_total", "process_resident_memory_bytes", "process_open_fds"} {
		if names[metric] {
			found++
		}
	}
	assert.Greater(t, found, 0, "should have at least one process metric registered")
}

func TestRegistryWithConfig_MetricNames(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		subsystem string
		offset    string
		receiver  string
	}{
		{"namespace only", "myapp", "", "myapp_offset_microseconds", "myapp_receiver_frames_accepted"},
		{"namespace and subsystem", "myapp", "gps", "myapp_gps_offset_microseconds", "myapp_receiver_frames_accepted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistryWithConfig(tt.namespace, tt.subsystem)
			require.NoError(t, reg.Register())

			m := reg.GetMetrics()
			m.OffsetMicroseconds.Set(1)
			m.FramesAccepted.WithLabelValues("ubx").Set(1)

			names := gatherNames(t, reg.GetRegistry())
			assert.True(t, names[tt.offset], "expected %s", tt.offset)
			assert.True(t, names[tt.receiver], "expected %s", tt.receiver)
		})
	}
}

func TestRegistry_MultipleInstances(t *testing.T) {
	reg1 := NewRegistry()
	reg2 := NewRegistry()

	assert.NoError(t, reg1.Register())
	assert.NoError(t, reg2.Register())
	assert.NotSame(t, reg1.GetRegistry(), reg2.GetRegistry())
}

func TestClockMetrics_RegisterAlone(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewClockMetrics()

	require.NoError(t, registry.Register(m))

	m.CollectionsTotal.WithLabelValues("discipline", "success").Inc()
	m.CollectionsTotal.WithLabelValues("discipline", "success").Inc()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "gpsclock_collections_total" {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
			return
		}
	}
	t.Fatal("gpsclock_collections_total not found")
}

func BenchmarkRegistry_Gather(b *testing.B) {
	reg := NewRegistry()
	require.NoError(b, reg.Register())

	promReg := reg.GetRegistry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = promReg.Gather()
	}
}

func TestClockMetrics_NamingConventions(t *testing.T) {
	m := NewClockMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))

	m.Quality.WithLabelValues("LOW").Set(1)
	m.FramesRejected.WithLabelValues("ubx", "length").Set(1)
	m.ReferenceDivergenceSeconds.WithLabelValues("time.google.com").Set(0)
	m.HTTPRequestsTotal.WithLabelValues("/api/time", "200").Inc()
	m.BuildInfo.WithLabelValues("dev", "none", "go1.24").Set(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	for _, mf := range families {
		testutil.ValidatePrometheusMetricName(t, mf.GetName())
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				testutil.ValidatePrometheusLabelName(t, lp.GetName())
			}
		}
	}
}
