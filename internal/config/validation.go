package config

import (
	"errors"
	"strconv"
	"time"

	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/internal/discipline"
)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(&c.Server) },
		func(c *Config) error { return validateReceiver(&c.Receiver) },
		func(c *Config) error { return validatePPS(&c.PPS) },
		func(c *Config) error { return validateDiscipline(&c.Discipline) },
		func(c *Config) error { return validateClock(&c.Clock) },
		func(c *Config) error { return validateDisplay(&c.Display) },
		func(c *Config) error { return validateBroadcast(&c.Broadcast) },
		func(c *Config) error { return validateReference(&c.Reference) },
		func(c *Config) error { return validateLogging(&c.Logging) },
		func(c *Config) error { return validateMetrics(&c.Metrics) },
	}
	for _, v := range validators {
		if err := v(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New("port must be between 1 and 65535, got " + strconv.Itoa(cfg.Port))
	}

	if cfg.ReadTimeout < 1*time.Second || cfg.ReadTimeout > 60*time.Second {
		return errors.New("read_timeout must be between 1s and 60s")
	}

	if cfg.WriteTimeout < 1*time.Second || cfg.WriteTimeout > 60*time.Second {
		return errors.New("write_timeout must be between 1s and 60s")
	}

	if cfg.TLSEnabled {
		if cfg.TLSCertFile == "" {
			return errors.New("tls_cert_file is required when tls_enabled is true")
		}
		if cfg.TLSKeyFile == "" {
			return errors.New("tls_key_file is required when tls_enabled is true")
		}
	}

	if cfg.SettingsRate < 0 {
		return errors.New("settings_rate must not be negative")
	}
	if cfg.SettingsBurst < 1 {
		return errors.New("settings_burst must be at least 1, got " + strconv.Itoa(cfg.SettingsBurst))
	}

	return nil
}

func validateReceiver(cfg *ReceiverConfig) error {
	if cfg.Device == "" {
		return errors.New("receiver.device is required")
	}

	switch cfg.Baud {
	case 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800:
	default:
		return errors.New("receiver.baud is not a supported rate, got " + strconv.Itoa(cfg.Baud))
	}

	if cfg.InitGap < 0 || cfg.InitGap > time.Second {
		return errors.New("receiver.init_gap must be between 0 and 1s")
	}

	if cfg.ReopenBackoff < 100*time.Millisecond {
		return errors.New("receiver.reopen_backoff must be at least 100ms")
	}

	if cfg.CircuitBreaker.ConsecutiveFailures < 1 {
		return errors.New("receiver.circuit_breaker.consecutive_failures must be at least 1")
	}

	// Both widths must leave an edge inside the 1s period
	tp := cfg.Timepulse
	if tp.PulseLenLockNs == 0 || tp.PulseLenLockNs >= uint32(time.Second) {
		return errors.New("receiver.timepulse.pulse_len_lock_ns must be between 1ns and 1s, got " + strconv.FormatUint(uint64(tp.PulseLenLockNs), 10))
	}
	if tp.PulseLenNs >= uint32(time.Second) {
		return errors.New("receiver.timepulse.pulse_len_ns must be shorter than 1s, got " + strconv.FormatUint(uint64(tp.PulseLenNs), 10))
	}

	return nil
}

func validatePPS(cfg *PPSConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Chip == "" {
		return errors.New("pps.chip is required when pps is enabled")
	}
	if cfg.Line == "" {
		return errors.New("pps.line is required when pps is enabled")
	}
	return nil
}

func validateDiscipline(cfg *DisciplineConfig) error {
	if _, err := discipline.ParsePolicy(cfg.Policy); err != nil {
		return errors.New("invalid discipline.policy (must be fallback or require_pps), got " + cfg.Policy)
	}

	if cfg.PPSWindow < 100*time.Millisecond || cfg.PPSWindow > 10*time.Second {
		return errors.New("discipline.pps_window must be between 100ms and 10s")
	}

	return nil
}

func validateClock(cfg *ClockConfig) error {
	if cfg.TimeZone < clock.MinTimeZone || cfg.TimeZone > clock.MaxTimeZone {
		return errors.New("clock.time_zone must be between -12 and 14, got " + strconv.Itoa(cfg.TimeZone))
	}

	if cfg.Brightness < 0 || cfg.Brightness > clock.MaxBrightness {
		return errors.New("clock.brightness must be between 0 and 127, got " + strconv.Itoa(cfg.Brightness))
	}

	if cfg.RefreshInterval < 100*time.Microsecond || cfg.RefreshInterval > time.Second {
		return errors.New("clock.refresh_interval must be between 100us and 1s")
	}

	if cfg.StorePath == "" {
		return errors.New("clock.store_path is required")
	}

	return nil
}

func validateDisplay(cfg *DisplayConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.SPIPort == "" {
		return errors.New("display.spi_port is required when the display is enabled")
	}
	if cfg.LatchPin == "" {
		return errors.New("display.latch_pin is required when the display is enabled")
	}
	if cfg.SPIHz < 1000 || cfg.SPIHz > 50_000_000 {
		return errors.New("display.spi_hz must be between 1kHz and 50MHz")
	}

	for name, p := range map[string]int{
		"red_percent":   cfg.RedPercent,
		"green_percent": cfg.GreenPercent,
		"blue_percent":  cfg.BluePercent,
	} {
		if p < 0 || p > 100 {
			return errors.New("display." + name + " must be between 0 and 100, got " + strconv.Itoa(p))
		}
	}

	return nil
}

func validateBroadcast(cfg *BroadcastConfig) error {
	if cfg.UDPEnabled && cfg.UDPDestination == "" {
		return errors.New("broadcast.udp_destination is required when udp is enabled")
	}
	return nil
}

func validateReference(cfg *ReferenceConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if len(cfg.Servers) == 0 {
		return errors.New("at least one reference server must be configured")
	}
	for i, s := range cfg.Servers {
		if s == "" {
			return errors.New("reference.servers[" + strconv.Itoa(i) + "]: host is required")
		}
	}

	if cfg.Timeout < 1*time.Second || cfg.Timeout > 60*time.Second {
		return errors.New("reference.timeout must be between 1s and 60s")
	}

	if cfg.Interval < cfg.Timeout {
		return errors.New("reference.interval must not be shorter than reference.timeout")
	}

	if cfg.Version < 2 || cfg.Version > 4 {
		return errors.New("ntp version must be 2, 3, or 4, got " + strconv.Itoa(cfg.Version))
	}

	if cfg.History < 1 || cfg.History > 1024 {
		return errors.New("reference.history must be between 1 and 1024, got " + strconv.Itoa(cfg.History))
	}

	if cfg.GlobalRate < 0 || cfg.PerServerRate < 0 {
		return errors.New("reference rates must not be negative")
	}
	if cfg.BurstSize < 1 {
		return errors.New("reference.burst_size must be at least 1")
	}

	if cfg.CircuitBreaker.FailureThreshold <= 0 || cfg.CircuitBreaker.FailureThreshold > 1 {
		return errors.New("reference.circuit_breaker.failure_threshold must be in (0, 1]")
	}

	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLevels[cfg.Level] {
		return errors.New("invalid log level (must be trace, debug, info, warn, error, fatal, or panic)")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[cfg.Format] {
		return errors.New("invalid log format (must be json or console)")
	}

	switch cfg.Output {
	case "stdout", "stderr":
	case "file":
		if cfg.FilePath == "" {
			return errors.New("file_path is required when output is file")
		}
	default:
		return errors.New("invalid log output (must be stdout, stderr, or file)")
	}

	return nil
}

func validateMetrics(cfg *MetricsConfig) error {
	if cfg.Namespace == "" {
		return errors.New("namespace is required")
	}

	if cfg.Interval < 100*time.Millisecond {
		return errors.New("metrics.interval must be at least 100ms")
	}

	return nil
}
