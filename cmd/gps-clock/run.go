package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	evbus "github.com/asaskevich/EventBus"
	"github.com/maximewewer/gps-clock/internal/broadcast"
	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/internal/collector"
	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/internal/display"
	"github.com/maximewewer/gps-clock/internal/hwclock"
	"github.com/maximewewer/gps-clock/internal/pps"
	"github.com/maximewewer/gps-clock/internal/receiver"
	"github.com/maximewewer/gps-clock/internal/reference"
	"github.com/maximewewer/gps-clock/internal/server"
	"github.com/maximewewer/gps-clock/internal/store"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/metrics"
	"github.com/maximewewer/gps-clock/pkg/ratelimit"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the clock daemon (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}
}

func runDaemon(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := setup(opts)
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Startup(version, commit, map[string]interface{}{
		"go_version": runtime.Version(),
		"config":     cfg,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := build(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	err = d.run(ctx)
	logger.Shutdown("graceful")
	return err
}

// daemon holds the wired components of one run
type daemon struct {
	cfg *config.Config

	engine  *discipline.Engine
	capture *pps.Capture
	ppsSrc  pps.Source
	clock   *clock.Clock
	store   *store.Store
	rx      *receiver.Receiver
	serial  *receiver.SerialPort
	display *display.Display
	bus     evbus.Bus
	ticker  *clock.Ticker
	udp     *broadcast.Broadcaster
	hub     *broadcast.Hub
	server  *server.Server

	collectors *collector.Registry
	references *collector.Registry
}

func build(cfg *config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg, bus: evbus.New()}

	counter := hwclock.NewMonotonic()
	d.capture = pps.NewCapture(counter)

	engineOpts, err := engineOptions(cfg)
	if err != nil {
		return nil, err
	}
	d.engine = discipline.NewEngine(counter, d.capture, engineOpts...)

	d.store, err = store.Open(cfg.Clock.StorePath)
	if err != nil {
		logger.Error("main", "Settings store unavailable, changes will not persist", err)
	}
	d.clock = clock.New(d.engine, bootSettings(cfg, d.store))

	d.rx = receiver.New(d.engine, receiver.WithFusionHook(func(f receiver.Fusion) {
		logger.Fusion(f.Result.Alignment.String(), f.Result.Offset, f.Delta, d.engine.Quality().String())
	}))
	d.serial = receiver.NewSerialPort(receiver.SerialConfig{
		Device:        cfg.Receiver.Device,
		Baud:          cfg.Receiver.Baud,
		InitOnStart:   cfg.Receiver.InitOnStart,
		Init:          initOptions(cfg),
		InitGap:       cfg.Receiver.InitGap,
		ReopenBackoff: cfg.Receiver.ReopenBackoff,
		Breaker: receiver.BreakerConfig{
			MaxRequests:      cfg.Receiver.CircuitBreaker.MaxRequests,
			Interval:         cfg.Receiver.CircuitBreaker.Interval,
			Timeout:          cfg.Receiver.CircuitBreaker.Timeout,
			FailureThreshold: cfg.Receiver.CircuitBreaker.ConsecutiveFailures,
		},
	}, d.rx, nil)

	if cfg.PPS.Enabled {
		src, err := pps.OpenGPIO(pps.SourceConfig{
			Chip:        cfg.PPS.Chip,
			Line:        cfg.PPS.Line,
			FallingEdge: cfg.PPS.FallingEdge,
		}, d.capture)
		if err != nil {
			// Without edges the engine aligns to message arrival
			logger.Error("main", "PPS line unavailable", err)
		} else {
			d.ppsSrc = src
		}
	}

	var driver display.Driver = display.NullDriver{}
	if cfg.Display.Enabled {
		spi, err := display.OpenSPI(display.SPIConfig{
			Port:     cfg.Display.SPIPort,
			SpeedHz:  cfg.Display.SPIHz,
			LatchPin: cfg.Display.LatchPin,
		})
		if err != nil {
			logger.Error("main", "Display unavailable", err)
		} else {
			driver = spi
		}
	}
	d.display = display.New(driver, display.Calibration{
		RedPercent:   cfg.Display.RedPercent,
		GreenPercent: cfg.Display.GreenPercent,
		BluePercent:  cfg.Display.BluePercent,
	})
	d.ticker = clock.NewTicker(d.clock, d.display, d.bus, cfg.Clock.RefreshInterval)

	if cfg.Broadcast.UDPEnabled {
		d.udp, err = broadcast.NewBroadcaster(cfg.Broadcast.UDPDestination)
		if err != nil {
			d.close()
			return nil, err
		}
		if err := d.udp.Attach(d.bus); err != nil {
			d.close()
			return nil, err
		}
	}
	d.hub = broadcast.NewHub(nil)
	if err := d.hub.Attach(d.bus); err != nil {
		d.close()
		return nil, err
	}

	if err := d.wireMetrics(); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

// engineOptions maps the discipline section onto engine options
func engineOptions(cfg *config.Config) ([]discipline.Option, error) {
	policy, err := discipline.ParsePolicy(cfg.Discipline.Policy)
	if err != nil {
		return nil, err
	}
	return []discipline.Option{
		discipline.WithPolicy(policy),
		discipline.WithPPSWindow(cfg.Discipline.PPSWindow),
	}, nil
}

// bootSettings prefers the last persisted record and falls back to the
// configured clock section when the store is missing or empty.
func bootSettings(cfg *config.Config, st *store.Store) clock.Settings {
	configured := clock.Settings{TimeZoneHours: cfg.Clock.TimeZone, Brightness: uint8(cfg.Clock.Brightness)}
	if st == nil {
		return configured
	}
	saved, found, err := st.Load()
	switch {
	case err != nil:
		logger.Error("main", "Failed to load saved settings, using configuration", err)
		return configured
	case !found:
		return configured
	default:
		return saved
	}
}

func (d *daemon) wireMetrics() error {
	cfg := d.cfg
	registry := metrics.NewRegistryWithConfig(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	if err := registry.Register(); err != nil {
		return err
	}
	m := registry.GetMetrics()
	m.BuildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)

	d.collectors = collector.NewRegistry()
	d.collectors.Register(collector.NewDisciplineCollector(d.engine, d.capture, m))
	d.collectors.Register(collector.NewReceiverCollector(d.rx, d.serial, m))

	var udp collector.SendCounter
	if d.udp != nil {
		udp = d.udp
	}
	d.collectors.Register(collector.NewOutputsCollector(udp, d.hub, m))

	d.references = collector.NewRegistry()
	if cfg.Reference.Enabled {
		rc := cfg.Reference
		limiter := ratelimit.New(rc.GlobalRate, rc.PerServerRate, rc.BurstSize)
		client := reference.NewClient(rc.Timeout, rc.Version, limiter)
		breaker := reference.NewBreakerClient(client, reference.NewBreakerConfig(
			rc.CircuitBreaker.MaxRequests,
			rc.CircuitBreaker.Interval,
			rc.CircuitBreaker.Timeout,
			rc.CircuitBreaker.FailureThreshold,
		))
		checker := reference.NewChecker(breaker, d.clock, rc.Servers, rc.History)
		d.references.Register(collector.NewReferenceCollector(checker, true, m))
	}

	logger.SafeInfo("main", "Registered collectors", map[string]interface{}{
		"total":             d.collectors.Count() + d.references.Count(),
		"enabled":           d.collectors.EnabledCount() + d.references.EnabledCount(),
		"fast":              d.collectors.Names(),
		"reference_enabled": cfg.Reference.Enabled,
	})

	var st server.SettingsStore
	if d.store != nil {
		st = d.store
	}
	d.server = server.New(cfg, registry.GetRegistry(), m, server.Deps{
		Clock:  d.clock,
		Store:  st,
		Stream: d.hub,
	})
	return nil
}

// run starts every loop and returns when ctx is done or one loop fails
func (d *daemon) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.serial.Run(ctx) })
	g.Go(func() error { return d.ticker.Run(ctx) })
	g.Go(func() error { return d.server.Start(ctx) })
	g.Go(func() error { return d.collectors.Run(ctx, d.cfg.Metrics.Interval) })
	if d.references.Count() > 0 {
		g.Go(func() error { return d.references.Run(ctx, d.cfg.Reference.Interval) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("main", "Daemon stopped with error", err)
		return err
	}
	return nil
}

func (d *daemon) close() {
	if d.hub != nil {
		d.hub.Close()
	}
	if d.udp != nil {
		if err := d.udp.Close(); err != nil {
			logger.Error("main", "Failed to close UDP broadcaster", err)
		}
	}
	if d.display != nil {
		if err := d.display.Close(); err != nil {
			logger.Error("main", "Failed to close display", err)
		}
	}
	if d.ppsSrc != nil {
		if err := d.ppsSrc.Close(); err != nil {
			logger.Error("main", "Failed to close PPS line", err)
		}
	}
}
