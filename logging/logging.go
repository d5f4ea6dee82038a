// Package logging wraps zerolog the way the teacher's utils/logger does:
// a context-scoped logger with a handful of With... helpers, so every
// subsystem logs with consistent structured fields instead of threading a
// logger argument through every call.
package logging

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

var loggerKey = ctxKey{}

// Initialize sets up the global logger at Info level.
func Initialize() {
	InitializeWithLevel(zerolog.InfoLevel)
}

// InitializeWithLevel sets up the global logger with the given level.
func InitializeWithLevel(level zerolog.Level) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	log.Logger = zerolog.New(consoleWriter).
		With().
		Timestamp().
		Logger()
}

// SetLevel changes the global log level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// FromContext extracts a logger from ctx, falling back to the global
// logger when none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return log.Logger
	}
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return log.Logger
}

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithComponent tags the context logger with a subsystem name (e.g.
// "feature.aggregator", "scoring.hybrid").
func WithComponent(ctx context.Context, component string) (context.Context, zerolog.Logger) {
	logger := FromContext(ctx).With().Str("component", component).Logger()
	return WithContext(ctx, logger), logger
}

// WithTrackID tags the context logger with the track under consideration.
func WithTrackID(ctx context.Context, trackID string) (context.Context, zerolog.Logger) {
	logger := FromContext(ctx).With().Str("track_id", trackID).Logger()
	return WithContext(ctx, logger), logger
}
