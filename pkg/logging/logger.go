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
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	// Configure output
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

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// For returns a pointer to a logger derived from the global one, for
// constructors taking *zerolog.Logger. Those add their own component field.
func For(fields map[string]string) *zerolog.Logger {
	ctx := log.With()
	for k, v := range fields {
		ctx = ctx.Str(k, v)
	}
	l := ctx.Logger()
	return &l
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request cache operations (hit/miss, coalesced, key, TTL)
//   - Schema cache hits and refreshes
//   - Discarded stale cascades and listing pages (seq, latest)
//   - Hydration and live-fetch guard short-circuits
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Scheduled cache cleanup results
//   - Listing export progress
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Mirror errors (memory cache keeps serving)
//   - Failed cascades (previous facets kept, listings still fetched)
//   - Unknown attribute types skipped while decoding a schema
//
// Error: Error conditions requiring attention
//   - Failed queries after retries
//   - Service unavailability
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting component (request-cache, gateway, filter-store, ...)
//   - session_id: Browsing session id
//   - category: Category slug
//   - operation: Query operation name
//   - cache_key: Canonical request cache key
//   - seq: Sequence number of a cascade or listing request
//   - status_code: HTTP status code
//   - duration: Request duration
//   - error_class: Error classification (network, server, client, remote, decode)
