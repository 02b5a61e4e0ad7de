package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/internal/hwclock"
	"github.com/maximewewer/gps-clock/internal/pps"
	"github.com/maximewewer/gps-clock/pkg/metrics"
	testutil "github.com/maximewewer/gps-clock/pkg/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = calendar.CalendarTime{Year: 2024, Month: 1, Day: 15, Hour: 12}

type fakeStore struct {
	mu    sync.Mutex
	saved []clock.Settings
	err   error
}

func (f *fakeStore) Save(s clock.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func newTestClock(t *testing.T, synced bool) *clock.Clock {
	t.Helper()
	clk := hwclock.NewManual(2_000_000)
	c := clock.New(discipline.NewEngine(clk, pps.NewCapture(clk)), clock.DefaultSettings())
	if synced {
		_, _, err := c.Engine().Fuse(discipline.ReadingFromCalendar(noon, 0))
		require.NoError(t, err)
	}
	return c
}

func newTestHandlers(t *testing.T, synced bool) (*Handlers, *clock.Clock, *fakeStore, *metrics.ClockMetrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	m := metrics.NewClockMetrics()
	c := newTestClock(t, synced)
	store := &fakeStore{}
	return NewHandlers(cfg, prometheus.NewRegistry(), m, c, store), c, store, m
}

func TestNewHandlers(t *testing.T) {
	h, _, _, _ := newTestHandlers(t, false)

	assert.NotNil(t, h)
	assert.NotNil(t, h.config)
	assert.NotNil(t, h.registry)
	assert.NotNil(t, h.limiter)
}

func TestHandlers_MetricsHandler(t *testing.T) {
	h, _, _, _ := newTestHandlers(t, false)

	testGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_metric",
		Help: "Test metric",
	})
	h.registry.MustRegister(testGauge)
	testGauge.Set(42)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	h.MetricsHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_metric")
	assert.Contains(t, w.Body.String(), "42")
}

func TestHandlers_TimeHandler(t *testing.T) {
	h, c, _, _ := newTestHandlers(t, true)
	require.NoError(t, c.SetSettings(clock.Settings{TimeZoneHours: 2, Brightness: 10}))

	req := httptest.NewRequest(http.MethodGet, "/api/time", nil)
	w := httptest.NewRecorder()

	h.TimeHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp TimeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, calendar.Compose(noon), resp.UTCMicros)
	assert.Equal(t, "2024-01-15 14:00:00", resp.Local)
	assert.True(t, resp.ZoneApplied)
	assert.Equal(t, "MEDIUM", resp.Quality)
	assert.False(t, resp.AccuracyKnown)
	assert.Equal(t, uint64(1), resp.Fusions)
	assert.Equal(t, "arrival", resp.Alignment)
	assert.Equal(t, int64(-1), resp.PPSAgeMicros)
}

func TestHandlers_TimeHandler_Unsynchronized(t *testing.T) {
	h, c, _, _ := newTestHandlers(t, false)
	require.NoError(t, c.SetSettings(clock.Settings{TimeZoneHours: 5}))

	w := httptest.NewRecorder()
	h.TimeHandler(w, httptest.NewRequest(http.MethodGet, "/api/time", nil))

	var resp TimeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID", resp.Quality)
	assert.False(t, resp.ZoneApplied)
	assert.Equal(t, "none", resp.Alignment)
}

func TestHandlers_GetSettingsHandler(t *testing.T) {
	h, _, _, _ := newTestHandlers(t, false)

	w := httptest.NewRecorder()
	h.GetSettingsHandler(w, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"time_zone":0,"brightness":64}`, w.Body.String())
}

func TestHandlers_PutSettingsHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantResult string
		wantSaved  int
	}{
		{"valid", `{"time_zone":-5,"brightness":100}`, http.StatusOK, "applied", 1},
		{"zone_out_of_range", `{"time_zone":15,"brightness":10}`, http.StatusBadRequest, "invalid", 0},
		{"brightness_out_of_range", `{"time_zone":0,"brightness":128}`, http.StatusBadRequest, "invalid", 0},
		{"malformed", `{"time_zone":`, http.StatusBadRequest, "invalid", 0},
		{"unknown_field", `{"tz":1}`, http.StatusBadRequest, "invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, c, store, m := newTestHandlers(t, false)
			reg := prometheus.NewRegistry()
			reg.MustRegister(m)

			req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			h.PutSettingsHandler(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantSaved, store.count())
			testutil.AssertMetricValue(t, reg, "gpsclock_settings_updates_total", map[string]string{"result": tt.wantResult}, 1)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, clock.Settings{TimeZoneHours: -5, Brightness: 100}, c.Settings())
			} else {
				assert.Equal(t, clock.DefaultSettings(), c.Settings())
			}
		})
	}
}

func TestHandlers_PutSettingsHandler_StoreFailure(t *testing.T) {
	h, c, store, _ := newTestHandlers(t, false)
	store.err = errors.New("flash worn out")

	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"time_zone":1,"brightness":1}`))
	w := httptest.NewRecorder()

	h.PutSettingsHandler(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// The live clock keeps the new value even if it could not be persisted
	assert.Equal(t, 1, c.Settings().TimeZoneHours)
}

func TestHandlers_PutSettingsHandler_RateLimited(t *testing.T) {
	h, _, store, _ := newTestHandlers(t, false)
	burst := h.config.Server.SettingsBurst

	codes := make([]int, 0, burst+1)
	for i := 0; i <= burst; i++ {
		req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"time_zone":1,"brightness":1}`))
		req.RemoteAddr = "192.0.2.10:40000"
		w := httptest.NewRecorder()
		h.PutSettingsHandler(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusTooManyRequests, codes[burst])
	assert.Equal(t, burst, store.count())

	// Another client has its own budget
	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"time_zone":2,"brightness":1}`))
	req.RemoteAddr = "192.0.2.11:40000"
	w := httptest.NewRecorder()
	h.PutSettingsHandler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlers_HealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		synced     bool
		wantCode   int
		wantStatus string
	}{
		{"unsynchronized", false, http.StatusServiceUnavailable, "unsynchronized"},
		{"synchronized", true, http.StatusOK, "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _, _ := newTestHandlers(t, tt.synced)

			w := httptest.NewRecorder()
			h.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "gps-clock", resp.Service)
		})
	}
}

func TestHandlers_IndexHandler(t *testing.T) {
	h, _, _, _ := newTestHandlers(t, true)

	w := httptest.NewRecorder()
	h.IndexHandler(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "GPS Disciplined Clock")
	assert.Contains(t, body, "/api/time")
	assert.Contains(t, body, "2024-01-15 12:00:00")
	assert.Contains(t, body, h.config.Receiver.Device)
}

func TestHandlers_IndexHandler_NotFound(t *testing.T) {
	h, _, _, _ := newTestHandlers(t, false)

	w := httptest.NewRecorder()
	h.IndexHandler(w, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"no-port", "no-port"},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestLoggerAdapter_Println(t *testing.T) {
	adapter := &loggerAdapter{}

	assert.NotPanics(t, func() {
		adapter.Println("test message")
		adapter.Println("error:", errors.New("boom"))
		adapter.Println()
	})
}
