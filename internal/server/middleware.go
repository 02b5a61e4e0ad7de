package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/metrics"
)

// Middleware wraps the mux with recovery, request accounting and, when
// enabled, CORS.
type Middleware struct {
	config  *config.Config
	metrics *metrics.ClockMetrics
}

func NewMiddleware(cfg *config.Config, m *metrics.ClockMetrics) *Middleware {
	return &Middleware{config: cfg, metrics: m}
}

// Apply wraps next. CORS runs first so preflights never reach the mux.
func (m *Middleware) Apply(next http.Handler) http.Handler {
	h := m.observeMiddleware(m.recoveryMiddleware(next))
	if m.config.Server.EnableCORS {
		h = m.corsMiddleware(h)
	}
	return h
}

// observeMiddleware logs each request and counts it by route and status.
func (m *Middleware) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.HTTP(r.Method, r.URL.Path, rw.statusCode, time.Since(start), r.RemoteAddr)
		m.metrics.HTTPRequestsTotal.WithLabelValues(routeLabel(r.URL.Path), strconv.Itoa(rw.statusCode)).Inc()
	})
}

// routeLabel bounds the path label to the served routes.
func routeLabel(path string) string {
	switch path {
	case "/", "/api/time", "/api/settings", "/ws/time", "/metrics", "/health":
		return path
	default:
		return "other"
	}
}

func (m *Middleware) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case m.isAllowedOrigin(origin):
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", "3600")
			h.Add("Vary", "Origin")
		case origin != "":
			logger.Security("cors_blocked", "origin not allowed", map[string]interface{}{
				"origin": origin,
				"path":   r.URL.Path,
			})
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin matches origin against server.allowed_origins. An entry
// of the form *.example.com admits any subdomain and https://example.com.
func (m *Middleware) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range m.config.Server.AllowedOrigins {
		if allowed == origin {
			return true
		}
		if domain, ok := strings.CutPrefix(allowed, "*."); ok {
			if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain {
				return true
			}
		}
	}
	return false
}

func (m *Middleware) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.SafeError("server", "Panic recovered", nil, map[string]interface{}{
					"panic":  v,
					"method": r.Method,
					"path":   r.URL.Path,
				})
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter records the status code written through it.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the websocket upgrader.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
