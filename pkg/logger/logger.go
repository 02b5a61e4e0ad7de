package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Global logger instance
	Logger zerolog.Logger

	// Pre-compiled regex patterns for sensitive data detection
	passwordPattern   = regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api[_-]?key|auth)`)
	credentialPattern = regexp.MustCompile(`(?i)://([^:]+):([^@]+)@`)

	// Active rotating file sink, closed on re-init
	fileSink   *lumberjack.Logger
	fileSinkMu sync.Mutex
)

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json, console
	Output    string // stdout, stderr, file
	FilePath  string // path to log file if output=file
	Component string // component name for structured logging

	// Rotation settings for output=file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// InitLogger initializes the global logger with the provided configuration
func InitLogger(cfg Config) error {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	writer, err := openWriter(cfg)
	if err != nil {
		return err
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.Output == "file",
		}
	}

	Logger = zerolog.New(writer).With().Timestamp().Str("component", cfg.Component).Logger()
	log.Logger = Logger

	return nil
}

// openWriter resolves the output sink. File output rotates through
// lumberjack.
func openWriter(cfg Config) (io.Writer, error) {
	switch cfg.Output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.FilePath == "" {
			return os.Stdout, nil
		}
		// Fail early on an unwritable path, lumberjack would only report it
		// on the first write.
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		_ = f.Close()

		fileSinkMu.Lock()
		defer fileSinkMu.Unlock()
		if fileSink != nil {
			_ = fileSink.Close()
		}
		fileSink = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		return fileSink, nil
	default:
		return os.Stdout, nil
	}
}

// Close flushes and closes the file sink, if any
func Close() error {
	fileSinkMu.Lock()
	defer fileSinkMu.Unlock()
	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	return err
}

// parseLevel converts string level to zerolog.Level
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// sanitizeFields removes or redacts sensitive information from fields
func sanitizeFields(fields map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		if passwordPattern.MatchString(key) {
			result[key] = "***REDACTED***"
			continue
		}

		if strValue, ok := value.(string); ok {
			result[key] = sanitizeString(strValue)
		} else {
			result[key] = value
		}
	}

	return result
}

// sanitizeString redacts credentials embedded in URLs
func sanitizeString(s string) string {
	return credentialPattern.ReplaceAllString(s, "://$1:***@")
}

// Debug logs a debug message
func Debug(pkg, message string) {
	Logger.Debug().
		Str("package", pkg).
		Msg(message)
}

// Debugf logs a formatted debug message
func Debugf(pkg, format string, args ...interface{}) {
	Logger.Debug().
		Str("package", pkg).
		Msgf(format, args...)
}

// Info logs an info message
func Info(pkg, message string) {
	Logger.Info().
		Str("package", pkg).
		Msg(message)
}

// Infof logs a formatted info message
func Infof(pkg, format string, args ...interface{}) {
	Logger.Info().
		Str("package", pkg).
		Msgf(format, args...)
}

// Warn logs a warning message
func Warn(pkg, message string) {
	Logger.Warn().
		Str("package", pkg).
		Msg(message)
}

// Warnf logs a formatted warning message
func Warnf(pkg, format string, args ...interface{}) {
	Logger.Warn().
		Str("package", pkg).
		Msgf(format, args...)
}

// Error logs an error message
func Error(pkg, message string, err error) {
	Logger.Error().
		Str("package", pkg).
		Err(err).
		Msg(message)
}

// Errorf logs a formatted error message
func Errorf(pkg string, err error, format string, args ...interface{}) {
	Logger.Error().
		Str("package", pkg).
		Err(err).
		Msgf(format, args...)
}

// SafeDebug logs a debug message with sanitized fields
func SafeDebug(pkg, message string, fields map[string]interface{}) {
	withSanitized(Logger.Debug().Str("package", pkg), fields).Msg(message)
}

// SafeInfo logs an info message with sanitized fields
func SafeInfo(pkg, message string, fields map[string]interface{}) {
	withSanitized(Logger.Info().Str("package", pkg), fields).Msg(message)
}

// SafeWarn logs a warning message with sanitized fields
func SafeWarn(pkg, message string, fields map[string]interface{}) {
	withSanitized(Logger.Warn().Str("package", pkg), fields).Msg(message)
}

// SafeError logs an error message with sanitized fields
func SafeError(pkg, message string, err error, fields map[string]interface{}) {
	withSanitized(Logger.Error().Str("package", pkg).Err(err), fields).Msg(message)
}

func withSanitized(event *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	for k, v := range sanitizeFields(fields) {
		event = event.Interface(k, v)
	}
	return event
}

// WithFields creates a logger with predefined fields
func WithFields(pkg string, fields map[string]interface{}) zerolog.Logger {
	sanitized := sanitizeFields(fields)
	ctx := Logger.With().Str("package", pkg)
	for k, v := range sanitized {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// HTTP logs HTTP request information
func HTTP(method, path string, statusCode int, duration time.Duration, remoteAddr string) {
	Logger.Info().
		Str("package", "http").
		Str("method", method).
		Str("path", path).
		Int("status", statusCode).
		Dur("duration", duration).
		Str("remote_addr", sanitizeString(remoteAddr)).
		Msg("HTTP request")
}

// Metric logs one collector run
func Metric(collector, target string, duration time.Duration, success bool) {
	event := Logger.Debug().
		Str("package", "metrics").
		Str("collector", collector).
		Str("target", target).
		Dur("duration", duration).
		Bool("success", success)

	if success {
		event.Msg("Metric collected successfully")
	} else {
		event.Msg("Metric collection failed")
	}
}

// Fusion logs one accepted discipline update
func Fusion(alignment string, offsetUs, deltaUs int64, quality string) {
	Logger.Debug().
		Str("package", "discipline").
		Str("alignment", alignment).
		Int64("offset_us", offsetUs).
		Int64("delta_us", deltaUs).
		Str("quality", quality).
		Msg("Time fused")
}

// Frame logs the outcome of one assembled receiver frame
func Frame(protocol string, accepted bool, reason string) {
	event := Logger.Debug().
		Str("package", "receiver").
		Str("protocol", protocol).
		Bool("accepted", accepted)
	if reason != "" {
		event = event.Str("reason", reason)
	}
	event.Msg("Receiver frame")
}

// Reference logs a reference server cross-check
func Reference(operation, server string, fields map[string]interface{}) {
	event := Logger.Debug().
		Str("package", "reference").
		Str("operation", operation).
		Str("server", server)
	withSanitized(event, fields).Msg("Reference operation")
}

// Security logs security-related events
func Security(event, reason string, fields map[string]interface{}) {
	logEvent := Logger.Warn().
		Str("package", "security").
		Str("event", event).
		Str("reason", reason)
	withSanitized(logEvent, fields).Msg("Security event detected")
}

// Startup logs application startup information
func Startup(version, commit string, config interface{}) {
	Logger.Info().
		Str("package", "main").
		Str("version", version).
		Str("commit", commit).
		Interface("config", config).
		Msg("GPS clock starting")
}

// Shutdown logs application shutdown
func Shutdown(reason string) {
	Logger.Info().
		Str("package", "main").
		Str("reason", reason).
		Msg("GPS clock shutting down")
}
