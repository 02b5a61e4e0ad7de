package config

import (
	"time"

	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/internal/display"
	"github.com/maximewewer/gps-clock/internal/receiver"
	"github.com/maximewewer/gps-clock/internal/reference"
	"github.com/maximewewer/gps-clock/internal/ubx"
)

// ApplyDefaults sets default values for unspecified configuration fields.
// Booleans are left alone, their defaults come from DefaultConfig.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{}
	}
	if cfg.Server.SettingsRate == 0 {
		cfg.Server.SettingsRate = 1
	}
	if cfg.Server.SettingsBurst == 0 {
		cfg.Server.SettingsBurst = 5
	}

	// Receiver defaults
	if cfg.Receiver.Device == "" {
		cfg.Receiver.Device = "/dev/serial0"
	}
	if cfg.Receiver.Baud == 0 {
		cfg.Receiver.Baud = 9600
	}
	if cfg.Receiver.InitGap == 0 {
		cfg.Receiver.InitGap = receiver.DefaultInitGap
	}
	if cfg.Receiver.ReopenBackoff == 0 {
		cfg.Receiver.ReopenBackoff = 2 * time.Second
	}
	if cfg.Receiver.CircuitBreaker.MaxRequests == 0 {
		cfg.Receiver.CircuitBreaker.MaxRequests = 1
	}
	if cfg.Receiver.CircuitBreaker.Timeout == 0 {
		cfg.Receiver.CircuitBreaker.Timeout = 30 * time.Second
	}
	if cfg.Receiver.CircuitBreaker.ConsecutiveFailures == 0 {
		cfg.Receiver.CircuitBreaker.ConsecutiveFailures = 3
	}
	if cfg.Receiver.Timepulse.PulseLenLockNs == 0 {
		cfg.Receiver.Timepulse.PulseLenLockNs = ubx.DefaultTP5().PulseLenLockNs
	}

	// PPS defaults
	if cfg.PPS.Chip == "" {
		cfg.PPS.Chip = "gpiochip0"
	}
	if cfg.PPS.Line == "" {
		cfg.PPS.Line = "18"
	}

	// Discipline defaults
	if cfg.Discipline.Policy == "" {
		cfg.Discipline.Policy = discipline.PolicyFallback.String()
	}
	if cfg.Discipline.PPSWindow == 0 {
		cfg.Discipline.PPSWindow = discipline.DefaultPPSWindow
	}

	// Clock defaults; time_zone 0 is a valid setting
	if cfg.Clock.RefreshInterval == 0 {
		cfg.Clock.RefreshInterval = clock.DefaultRefresh
	}
	if cfg.Clock.StorePath == "" {
		cfg.Clock.StorePath = "/var/lib/gps-clock/settings.bin"
	}

	// Display defaults
	if cfg.Display.SPIPort == "" {
		cfg.Display.SPIPort = "/dev/spidev0.0"
	}
	if cfg.Display.SPIHz == 0 {
		cfg.Display.SPIHz = 1_000_000
	}
	if cfg.Display.LatchPin == "" {
		cfg.Display.LatchPin = "GPIO25"
	}
	cal := display.DefaultCalibration()
	if cfg.Display.RedPercent == 0 {
		cfg.Display.RedPercent = cal.RedPercent
	}
	if cfg.Display.GreenPercent == 0 {
		cfg.Display.GreenPercent = cal.GreenPercent
	}
	if cfg.Display.BluePercent == 0 {
		cfg.Display.BluePercent = cal.BluePercent
	}

	// Broadcast defaults
	if cfg.Broadcast.UDPDestination == "" {
		cfg.Broadcast.UDPDestination = "255.255.255.255:5123"
	}

	// Reference defaults
	if len(cfg.Reference.Servers) == 0 {
		cfg.Reference.Servers = []string{"pool.ntp.org", "time.google.com"}
	}
	if cfg.Reference.Interval == 0 {
		cfg.Reference.Interval = reference.DefaultInterval
	}
	if cfg.Reference.Timeout == 0 {
		cfg.Reference.Timeout = reference.DefaultTimeout
	}
	if cfg.Reference.Version == 0 {
		cfg.Reference.Version = 4
	}
	if cfg.Reference.History == 0 {
		cfg.Reference.History = reference.DefaultHistory
	}
	if cfg.Reference.GlobalRate == 0 {
		cfg.Reference.GlobalRate = 10
	}
	if cfg.Reference.PerServerRate == 0 {
		cfg.Reference.PerServerRate = 0.1
	}
	if cfg.Reference.BurstSize == 0 {
		cfg.Reference.BurstSize = 2
	}
	applyBreakerDefaults(&cfg.Reference.CircuitBreaker)

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "gpsclock"
	}
	if cfg.Metrics.Interval == 0 {
		cfg.Metrics.Interval = 5 * time.Second
	}
}

func applyBreakerDefaults(cb *CircuitBreakerConfig) {
	def := reference.DefaultBreakerConfig()
	if cb.MaxRequests == 0 {
		cb.MaxRequests = def.MaxRequests
	}
	if cb.Interval == 0 {
		cb.Interval = def.Interval
	}
	if cb.Timeout == 0 {
		cb.Timeout = def.Timeout
	}
	if cb.FailureThreshold == 0 {
		cb.FailureThreshold = 0.6
	}
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() *Config {
	settings := clock.DefaultSettings()
	tp5 := ubx.DefaultTP5()
	cfg := &Config{
		Receiver: ReceiverConfig{
			InitOnStart: true,
			Timepulse: TimepulseConfig{
				LockGnssFreq:   tp5.LockGnssFreq,
				LockedOtherSet: tp5.LockedOtherSet,
				AlignToTow:     tp5.AlignToTow,
			},
		},
		PPS:      PPSConfig{Enabled: true},
		Clock: ClockConfig{
			TimeZone:   settings.TimeZoneHours,
			Brightness: int(settings.Brightness),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
