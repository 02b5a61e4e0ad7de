package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the clock components the HTTP surface exposes.
type Deps struct {
	Clock *clock.Clock
	// Store persists settings updates; nil keeps them in memory
	Store SettingsStore
	// Stream serves /ws/time; nil disables the route
	Stream http.Handler
}

// Server is the HTTP surface: JSON API, settings updates, websocket
// stream, Prometheus metrics and the status page.
type Server struct {
	config   *config.Config
	registry *prometheus.Registry
	metrics  *metrics.ClockMetrics
	deps     Deps
	server   *http.Server
}

func New(cfg *config.Config, registry *prometheus.Registry, m *metrics.ClockMetrics, deps Deps) *Server {
	return &Server{
		config:   cfg,
		registry: registry,
		metrics:  m,
		deps:     deps,
	}
}

// Handler returns the routed mux wrapped in middleware. Method-qualified
// patterns make the mux answer 405 for wrong verbs.
func (s *Server) Handler() http.Handler {
	h := NewHandlers(s.config, s.registry, s.metrics, s.deps.Clock, s.deps.Store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/time", h.TimeHandler)
	mux.HandleFunc("GET /api/settings", h.GetSettingsHandler)
	mux.HandleFunc("PUT /api/settings", h.PutSettingsHandler)
	if s.deps.Stream != nil {
		mux.Handle("GET /ws/time", s.deps.Stream)
	}
	mux.HandleFunc("/metrics", h.MetricsHandler)
	mux.HandleFunc("/health", h.HealthHandler)
	mux.HandleFunc("GET /{$}", h.IndexHandler)

	return NewMiddleware(s.config, s.metrics).Apply(mux)
}

// shutdownTimeout bounds how long in-flight requests and websocket
// upgrades get to finish once the daemon stops.
const shutdownTimeout = 10 * time.Second

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	sc := s.config.Server
	s.server = &http.Server{
		Addr:         net.JoinHostPort(sc.Address, strconv.Itoa(sc.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}
	if sc.TLSEnabled {
		s.server.TLSConfig = tlsConfig()
	}
	logger.SafeInfo("server", "Listening", map[string]interface{}{
		"addr": s.server.Addr,
		"tls":  sc.TLSEnabled,
	})

	errCh := make(chan error, 1)
	go func() {
		if sc.TLSEnabled {
			errCh <- s.server.ListenAndServeTLS(sc.TLSCertFile, sc.TLSKeyFile)
			return
		}
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("server", "Listener failed", err)
		return fmt.Errorf("serve %s: %w", s.server.Addr, err)
	}
}

// Shutdown stops the listener and waits up to shutdownTimeout for open
// requests. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("server", "Shutdown incomplete", err)
		return fmt.Errorf("shutdown %s: %w", s.server.Addr, err)
	}
	logger.Info("server", "HTTP server stopped")
	return nil
}

// tlsConfig restricts TLS 1.2 to ECDHE AEAD suites. TLS 1.3 suites are
// not configurable and always allowed.
func tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:       tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}
