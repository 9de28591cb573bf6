// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled silences all output.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ParseLevel converts LogLevel to zerolog.Level. Unknown levels map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Engine internals
//   - Admission decisions (mode, admitted count, in_flight)
//   - Settlements (index, outcome)
//   - Reassembly buffer growth
//   - Source exhaustion and Close
//
// Info: Normal operation events
//   - Batch fetch start and completion
//   - Batch fetch progress
//   - Server startup/shutdown
//
// Warn: Conditions that don't stop iteration
//   - Internal violation envelopes (unknown handle)
//   - Reassembler skipping a missing index
//   - Retry attempts and exhaustion
//   - List sources stopped by a Redis or decode error
//
// Error: Error conditions requiring attention
//   - Batch fetches returning partial results
//   - Configuration errors
//   - Service unavailability
//
// Context Fields:
//   - component: Emitting component (paginator, batch-fetcher, page-client, redisseq, pagefetch)
//   - index: Item index within the window
//   - in_flight: Size of the in-flight pool
//   - mode: Admission mode (chunks, infinite)
//   - endpoint: Paginated endpoint path
//   - page: Page number
//   - status_code: HTTP status code
//   - error_class: Error classification (client, server, rate_limit, network)
//   - key: Redis list key
