package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/maximewewer/gps-clock/internal/ubx"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/sony/gobreaker"
	"go.bug.st/serial"
)

const readBufSize = 256

// Opener opens the receiver device
type Opener func(device string, baud int) (io.ReadWriteCloser, error)

// OpenSerial opens a UART at baud, 8N1
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("receiver: open %s: %w", device, err)
	}
	return port, nil
}

// BreakerConfig controls how reopen failures trip the circuit breaker
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32 // consecutive failures before opening
}

// SerialConfig configures the serial read loop
type SerialConfig struct {
	Device        string
	Baud          int
	InitOnStart   bool
	Init          ubx.InitOptions
	InitGap       time.Duration
	ReopenBackoff time.Duration
	Breaker       BreakerConfig
}

// SerialPort keeps the receiver device open and copies its bytes into a
// Receiver. Reopen attempts go through a circuit breaker.
type SerialPort struct {
	cfg     SerialConfig
	rx      *Receiver
	open    Opener
	breaker *gobreaker.CircuitBreaker

	opens    atomic.Uint64
	failures atomic.Uint64
	bytes    atomic.Uint64
}

// NewSerialPort creates the read loop. A nil opener uses OpenSerial.
func NewSerialPort(cfg SerialConfig, rx *Receiver, open Opener) *SerialPort {
	if open == nil {
		open = OpenSerial
	}
	if cfg.ReopenBackoff <= 0 {
		cfg.ReopenBackoff = time.Second
	}
	bc := cfg.Breaker
	if bc.FailureThreshold == 0 {
		bc.FailureThreshold = 3
	}
	if bc.MaxRequests == 0 {
		bc.MaxRequests = 1
	}
	if bc.Timeout <= 0 {
		bc.Timeout = 30 * time.Second
	}

	s := &SerialPort{cfg: cfg, rx: rx, open: open}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Device,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.SafeWarn("receiver", "Serial circuit breaker state changed", map[string]interface{}{
				"device": name,
				"from":   from.String(),
				"to":     to.String(),
			})
		},
	})
	return s
}

// Run reads until the context is cancelled
func (s *SerialPort) Run(ctx context.Context) error {
	log := logger.WithFields("receiver", map[string]interface{}{
		"device": s.cfg.Device,
		"baud":   s.cfg.Baud,
	})
	for {
		if ctx.Err() != nil {
			return nil
		}

		port, err := s.openPort()
		if err != nil {
			s.failures.Add(1)
			if !errors.Is(err, gobreaker.ErrOpenState) {
				log.Error().Err(err).Msg("Failed to open receiver device")
			}
			if !sleep(ctx, s.cfg.ReopenBackoff) {
				return nil
			}
			continue
		}

		s.opens.Add(1)
		log.Info().Msg("Receiver device open")
		err = s.serve(ctx, port)
		if ctx.Err() != nil {
			return nil
		}
		log.Error().Err(err).Msg("Receiver read failed, reopening")
		if !sleep(ctx, s.cfg.ReopenBackoff) {
			return nil
		}
	}
}

func (s *SerialPort) openPort() (io.ReadWriteCloser, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.open(s.cfg.Device, s.cfg.Baud)
	})
	if err != nil {
		return nil, err
	}
	return v.(io.ReadWriteCloser), nil
}

func (s *SerialPort) serve(ctx context.Context, port io.ReadWriteCloser) error {
	// Closing the port is the only way to unblock a pending Read
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	s.rx.Reset()
	if s.cfg.InitOnStart {
		if err := Initialize(ctx, port, s.cfg.Init, s.cfg.InitGap); err != nil {
			return err
		}
		logger.Debug("receiver", "Init sequence sent")
	}

	buf := make([]byte, readBufSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			s.bytes.Add(uint64(n))
			_, _ = s.rx.Write(buf[:n])
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}
	}
}

// State returns the reopen circuit breaker state
func (s *SerialPort) State() gobreaker.State {
	return s.breaker.State()
}

// Opens returns the number of successful opens
func (s *SerialPort) Opens() uint64 {
	return s.opens.Load()
}

// OpenFailures returns the number of failed or refused opens
func (s *SerialPort) OpenFailures() uint64 {
	return s.failures.Load()
}

// BytesRead returns the number of bytes copied into the receiver
func (s *SerialPort) BytesRead() uint64 {
	return s.bytes.Load()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
