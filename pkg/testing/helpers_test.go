package testutil

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/internal/frame"
	"github.com/maximewewer/gps-clock/internal/nmea"
	"github.com/maximewewer/gps-clock/internal/ubx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTime = calendar.CalendarTime{Year: 2024, Month: 1, Day: 15, Hour: 12, Minute: 34, Second: 56}

func TestRMCSentence_Parses(t *testing.T) {
	raw := RMCSentence(sampleTime, ".25")

	a := frame.NewNMEAAssembler()
	var got []byte
	for _, b := range raw {
		if f, ok := a.Feed(b); ok {
			got = f
		}
	}
	require.NotNil(t, got)

	s, err := nmea.Parse(got)
	require.NoError(t, err)
	rmc, err := nmea.ParseRMC(s)
	require.NoError(t, err)

	assert.Equal(t, sampleTime, rmc.Calendar())
	assert.Equal(t, int64(250_000_000), rmc.FractionNanos)
}

func TestTimeUTCFrame_Decodes(t *testing.T) {
	p, err := ubx.Decode(TimeUTCFrame(sampleTime, 1_500, 30))
	require.NoError(t, err)

	m, err := ubx.ParseTimeUTC(p)
	require.NoError(t, err)

	assert.True(t, m.UTCValid())
	assert.Equal(t, sampleTime, m.Calendar())
	assert.Equal(t, int32(1_500), m.Nano)
	assert.Equal(t, uint32(30), m.TAcc)
}

func TestClockFrame_Decodes(t *testing.T) {
	p, err := ubx.Decode(ClockFrame(12))
	require.NoError(t, err)

	c, err := ubx.ParseClock(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), c.TAcc)
}

func TestAssertMetricValue(t *testing.T) {
	reg := prometheus.NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge_value",
		Help: "Test gauge for value assertion",
	})
	reg.MustRegister(gauge)
	gauge.Set(42.5)

	AssertMetricValue(t, reg, "test_gauge_value", nil, 42.5)

	gaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "test_gauge_with_labels",
			Help: "Test gauge with labels",
		},
		[]string{"protocol", "reason"},
	)
	reg.MustRegister(gaugeVec)
	gaugeVec.WithLabelValues("nmea", "checksum").Set(3)

	AssertMetricValue(t, reg, "test_gauge_with_labels", map[string]string{
		"protocol": "nmea",
		"reason":   "checksum",
	}, 3)
}

func TestAssertMetricExists(t *testing.T) {
	reg := prometheus.NewRegistry()

	counterVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_counter_with_labels",
			Help: "Test counter with labels",
		},
		[]string{"path"},
	)
	reg.MustRegister(counterVec)
	counterVec.WithLabelValues("/api/time").Inc()

	AssertMetricExists(t, reg, "test_counter_with_labels", map[string]string{"path": "/api/time"})
}

func TestWaitForCondition(t *testing.T) {
	var flag atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(true)
	}()

	WaitForCondition(t, flag.Load, time.Second, "flag set")
}

func TestNewTestHTTPServer(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := NewTestHTTPServer(t, handler)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestValidatePrometheusNames(t *testing.T) {
	for _, name := range []string{"gpsclock_offset_microseconds", "gpsclock_receiver_frames_rejected"} {
		ValidatePrometheusMetricName(t, name)
	}
	for _, name := range []string{"protocol", "reason", "server"} {
		ValidatePrometheusLabelName(t, name)
	}
}
