// Package config provides configuration loading with explicit naming
//
// Available functions:
//
//	LoadFromEnvVarsOnly()                - Environment variables ONLY
//	LoadFromYamlFile(path)               - YAML file ONLY (no env overrides)
//	LoadFromYamlWithEnvOverrides(path)   - YAML base + environment overrides
//	                                       Priority: Env Vars > YAML > Defaults
//
// Environment variables use the GPSCLOCK_ prefix. A double underscore
// separates sections, a single underscore stays part of the key:
//
//	GPSCLOCK_SERVER__PORT=8080
//	GPSCLOCK_RECEIVER__DEVICE=/dev/ttyAMA0
//	GPSCLOCK_DISCIPLINE__PPS_WINDOW=1s
//	GPSCLOCK_REFERENCE__SERVERS=pool.ntp.org,time.google.com
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/maximewewer/gps-clock/pkg/logger"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "GPSCLOCK_"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	PPS        PPSConfig        `yaml:"pps"`
	Discipline DisciplineConfig `yaml:"discipline"`
	Clock      ClockConfig      `yaml:"clock"`
	Display    DisplayConfig    `yaml:"display"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Reference  ReferenceConfig  `yaml:"reference"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	EnableCORS     bool          `yaml:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TLSEnabled     bool          `yaml:"tls_enabled"`
	TLSCertFile    string        `yaml:"tls_cert_file"`
	TLSKeyFile     string        `yaml:"tls_key_file"`
	// Settings updates allowed per second and client
	SettingsRate  float64 `yaml:"settings_rate"`
	SettingsBurst int     `yaml:"settings_burst"`
}

// ReceiverConfig contains the GPS receiver serial link configuration
type ReceiverConfig struct {
	Device         string               `yaml:"device"`
	Baud           int                  `yaml:"baud"`
	UBXOnly        bool                 `yaml:"ubx_only"`
	InitOnStart    bool                 `yaml:"init_on_start"`
	InitGap        time.Duration        `yaml:"init_gap"`
	ReopenBackoff  time.Duration        `yaml:"reopen_backoff"`
	CircuitBreaker SerialBreakerConfig  `yaml:"circuit_breaker"`
	Timepulse      TimepulseConfig      `yaml:"timepulse"`
}

// TimepulseConfig shapes the receiver PPS output sent in CFG-TP5. The rate
// is fixed at 1 Hz and the active edge follows pps.falling_edge.
type TimepulseConfig struct {
	PulseLenNs      uint32 `yaml:"pulse_len_ns"`
	PulseLenLockNs  uint32 `yaml:"pulse_len_lock_ns"`
	AntCableDelayNs int16  `yaml:"ant_cable_delay_ns"`
	LockGnssFreq    bool   `yaml:"lock_gnss_freq"`
	LockedOtherSet  bool   `yaml:"locked_other_set"`
	AlignToTow      bool   `yaml:"align_to_tow"`
}

// SerialBreakerConfig trips on consecutive failures to reopen the device
type SerialBreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// CircuitBreakerConfig contains circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
}

// PPSConfig selects the GPIO line carrying the time pulse
type PPSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Chip        string `yaml:"chip"`
	Line        string `yaml:"line"`
	FallingEdge bool   `yaml:"falling_edge"`
}

// DisciplineConfig contains the fusion parameters
type DisciplineConfig struct {
	Policy    string        `yaml:"policy"`
	PPSWindow time.Duration `yaml:"pps_window"`
}

// ClockConfig contains the user settings defaults and presentation loop
type ClockConfig struct {
	TimeZone        int           `yaml:"time_zone"`
	Brightness      int           `yaml:"brightness"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	StorePath       string        `yaml:"store_path"`
}

// DisplayConfig contains the LED display driver configuration
type DisplayConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SPIPort      string `yaml:"spi_port"`
	SPIHz        int64  `yaml:"spi_hz"`
	LatchPin     string `yaml:"latch_pin"`
	RedPercent   int    `yaml:"red_percent"`
	GreenPercent int    `yaml:"green_percent"`
	BluePercent  int    `yaml:"blue_percent"`
}

// BroadcastConfig contains the UDP time broadcast configuration
type BroadcastConfig struct {
	UDPEnabled     bool   `yaml:"udp_enabled"`
	UDPDestination string `yaml:"udp_destination"`
}

// ReferenceConfig contains the NTP cross-check configuration
type ReferenceConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Servers        []string             `yaml:"servers"`
	Interval       time.Duration        `yaml:"interval"`
	Timeout        time.Duration        `yaml:"timeout"`
	Version        int                  `yaml:"version"`
	History        int                  `yaml:"history"`
	GlobalRate     float64              `yaml:"global_rate"`
	PerServerRate  float64              `yaml:"per_server_rate"`
	BurstSize      int                  `yaml:"burst_size"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Namespace string        `yaml:"namespace"`
	Subsystem string        `yaml:"subsystem"`
	Interval  time.Duration `yaml:"interval"`
}

// LoadFromYamlFile reads configuration from a YAML file only (no env var overrides)
func LoadFromYamlFile(path string) (*Config, error) {
	cfg, err := readYaml(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration", err)
		return nil, fmt.Errorf("configuration validation failed for %s: %w", path, err)
	}

	return cfg, nil
}

func readYaml(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("config", "Failed to read config file", err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Error("config", "Failed to parse config file", err)
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromYamlWithEnvOverrides loads base config from YAML, then overrides with environment variables
// Priority: Environment Variables > YAML File > Defaults
func LoadFromYamlWithEnvOverrides(path string) (*Config, error) {
	cfg, err := readYaml(path)
	if err != nil {
		logger.Warn("config", "Failed to load YAML config file, falling back to env vars only")
		cfg = DefaultConfig()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration after env overrides", err)
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromEnvVarsOnly loads configuration from environment variables only (no YAML file)
// Priority: Environment Variables > Defaults
func LoadFromEnvVarsOnly() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration from environment", err)
		return nil, fmt.Errorf("environment configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps GPSCLOCK_RECEIVER__INIT_GAP to receiver.init_gap
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// envValue splits comma separated values so list fields such as
// GPSCLOCK_REFERENCE__SERVERS can be set from one variable
func envValue(key, value string) (string, interface{}) {
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return envKey(key), parts
	}
	return envKey(key), value
}

// applyEnvOverrides decodes GPSCLOCK_ variables over cfg. Only keys that
// are set are touched.
func applyEnvOverrides(cfg *Config) error {
	k := koanf.New(".")

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return fmt.Errorf("load env vars: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}

	// The decoder writes into existing slices index by index, so a shorter
	// list from the environment would keep the tail of the default.
	if k.Exists("reference.servers") {
		cfg.Reference.Servers = nil
	}
	if k.Exists("server.allowed_origins") {
		cfg.Server.AllowedOrigins = nil
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		logger.Error("config", "Failed to apply environment overrides", err)
		return fmt.Errorf("apply env overrides: %w", err)
	}
	return nil
}
