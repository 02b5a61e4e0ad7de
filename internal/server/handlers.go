package server

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net"
	"net/http"

	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/metrics"
	"github.com/maximewewer/gps-clock/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxSettingsBody bounds the PUT /api/settings payload
const maxSettingsBody = 1 << 10

// SettingsStore persists accepted settings
type SettingsStore interface {
	Save(clock.Settings) error
}

// Handlers contains HTTP request handlers
type Handlers struct {
	config   *config.Config
	registry *prometheus.Registry
	metrics  *metrics.ClockMetrics
	clock    *clock.Clock
	store    SettingsStore
	limiter  *ratelimit.Limiter
}

// NewHandlers creates a new handlers instance. A nil store keeps settings in
// memory only.
func NewHandlers(cfg *config.Config, registry *prometheus.Registry, m *metrics.ClockMetrics, c *clock.Clock, store SettingsStore) *Handlers {
	return &Handlers{
		config:   cfg,
		registry: registry,
		metrics:  m,
		clock:    c,
		store:    store,
		limiter:  ratelimit.New(0, cfg.Server.SettingsRate, cfg.Server.SettingsBurst),
	}
}

// TimeResponse is the body of GET /api/time
type TimeResponse struct {
	UTCMicros     int64  `json:"utc_us"`
	Local         string `json:"local"`
	ZoneApplied   bool   `json:"zone_applied"`
	Quality       string `json:"quality"`
	AccuracyNanos uint32 `json:"accuracy_ns"`
	AccuracyKnown bool   `json:"accuracy_known"`
	OffsetMicros  int64  `json:"offset_us"`
	LastDelta     int64  `json:"last_delta_us"`
	Fusions       uint64 `json:"fusions"`
	Alignment     string `json:"alignment"`
	PPSAgeMicros  int64  `json:"pps_age_us"`
	MessageAge    int64  `json:"message_age_us"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Quality string `json:"quality"`
}

// MetricsHandler serves Prometheus metrics
func (h *Handlers) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	handler := promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		ErrorLog:      &loggerAdapter{},
		ErrorHandling: promhttp.ContinueOnError,
	})

	handler.ServeHTTP(w, r)
}

// TimeHandler returns the disciplined time and the engine state
func (h *Handlers) TimeHandler(w http.ResponseWriter, r *http.Request) {
	st := h.clock.Engine().Snapshot()
	lt := h.clock.LocalAt(st)

	writeJSON(w, http.StatusOK, TimeResponse{
		UTCMicros:     st.UTC,
		Local:         lt.Calendar.String(),
		ZoneApplied:   lt.ZoneApplied,
		Quality:       st.Quality.String(),
		AccuracyNanos: st.AccuracyNanos,
		AccuracyKnown: st.AccuracyNanos != discipline.AccuracyUnknown,
		OffsetMicros:  st.Offset,
		LastDelta:     st.LastDelta,
		Fusions:       st.Fusions,
		Alignment:     st.Alignment.String(),
		PPSAgeMicros:  st.PPSAge,
		MessageAge:    st.MessageAge,
	})
}

// GetSettingsHandler returns the live settings
func (h *Handlers) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.clock.Settings())
}

// PutSettingsHandler validates, applies and persists new settings
func (h *Handlers) PutSettingsHandler(w http.ResponseWriter, r *http.Request) {
	key := clientIP(r)
	if !h.limiter.Allow(key) {
		h.metrics.SettingsUpdatesTotal.WithLabelValues("rate_limited").Inc()
		logger.Security("rate_limited", "settings update throttled", map[string]interface{}{
			"remote_addr": key,
		})
		writeError(w, http.StatusTooManyRequests, "too many settings updates")
		return
	}

	var s clock.Settings
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		h.metrics.SettingsUpdatesTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "malformed settings body")
		return
	}

	if err := h.clock.SetSettings(s); err != nil {
		h.metrics.SettingsUpdatesTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Save(s); err != nil {
			h.metrics.SettingsUpdatesTotal.WithLabelValues("store_error").Inc()
			logger.Error("server", "Failed to persist settings", err)
			writeError(w, http.StatusInternalServerError, "settings applied but not persisted")
			return
		}
	}

	h.metrics.SettingsUpdatesTotal.WithLabelValues("applied").Inc()
	logger.SafeInfo("server", "Settings updated", map[string]interface{}{
		"time_zone":  s.TimeZoneHours,
		"brightness": s.Brightness,
	})
	writeJSON(w, http.StatusOK, s)
}

// HealthHandler returns 503 until the clock has been synchronized
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	q := h.clock.Quality()
	resp := HealthResponse{Status: "healthy", Service: "gps-clock", Quality: q.String()}
	code := http.StatusOK
	if q == discipline.Invalid {
		resp.Status = "unsynchronized"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>GPS Clock</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        h1 { color: #333; }
        ul { list-style-type: none; padding: 0; }
        li { margin: 10px 0; }
        a { color: #0066cc; text-decoration: none; }
        a:hover { text-decoration: underline; }
        .info { background-color: #f0f0f0; padding: 15px; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>GPS Disciplined Clock</h1>
    <div class="info">
        <h2>Now: {{.Local}} ({{.Quality}})</h2>
        <h2>Available Endpoints:</h2>
        <ul>
            <li><a href="/api/time">/api/time</a> - Disciplined time</li>
            <li><a href="/api/settings">/api/settings</a> - Time zone and brightness</li>
            <li>/ws/time - Per-second websocket stream</li>
            <li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
            <li><a href="/health">/health</a> - Health check</li>
        </ul>
        <h2>Configuration:</h2>
        <ul>
            <li>Receiver: {{.Device}} @ {{.Baud}} baud</li>
            <li>Fusion policy: {{.Policy}}</li>
            <li>PPS: {{.PPS}}</li>
            <li>Reference servers: {{.References}}</li>
        </ul>
    </div>
</body>
</html>`))

// IndexHandler serves the index page
func (h *Handlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	lt := h.clock.Local()
	pps := "disabled"
	if h.config.PPS.Enabled {
		pps = h.config.PPS.Chip + " line " + h.config.PPS.Line
	}
	refs := 0
	if h.config.Reference.Enabled {
		refs = len(h.config.Reference.Servers)
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	err := indexTemplate.Execute(w, map[string]interface{}{
		"Local":      lt.Calendar.String(),
		"Quality":    lt.Quality.String(),
		"Device":     h.config.Receiver.Device,
		"Baud":       h.config.Receiver.Baud,
		"Policy":     h.config.Discipline.Policy,
		"PPS":        pps,
		"References": refs,
	})
	if err != nil {
		logger.Error("server", "Failed to render index page", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		logger.Error("server", "Failed to write response", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// clientIP is the rate limit key for a request
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// loggerAdapter adapts pkg/logger to promhttp logger interface
type loggerAdapter struct{}

func (l *loggerAdapter) Println(v ...interface{}) {
	msg := ""
	for i, val := range v {
		if i > 0 {
			msg += " "
		}
		if s, ok := val.(string); ok {
			msg += s
		} else if err, ok := val.(error); ok {
			msg += err.Error()
		}
	}
	logger.Error("promhttp", msg, nil)
}
