// Package logger configures the application's slog loggers.
//
// In dev environments logs are rendered with the tint handler (colorized,
// human readable); in prod/staging a JSON handler is used so logs can be
// shipped to an aggregator.
//
// Handlers can attach a per-request logger to the request context and
// accumulate attributes that the request-logging middleware includes in the
// final request log line.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger creates the application logger for the given level and
// environment and installs it as the slog default.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler

	switch environment {
	case "prod", "staging":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// ParseLogLevel converts a LOG_LEVEL string to a slog.Level.
// Unrecognized values fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type contextKey int

const requestLogKey contextKey = iota

// requestLog holds the per-request logger plus any attributes handlers want
// included in the final request log line.
type requestLog struct {
	logger *slog.Logger

	mu    sync.Mutex
	attrs []slog.Attr
}

// ContextWithRequestLogger returns a context carrying a request-scoped logger.
// The request-logging middleware calls this once per request.
func ContextWithRequestLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLogKey, &requestLog{logger: l})
}

// ContextRequestLogger returns the request-scoped logger from the context, or
// the default logger when no request logger has been attached (e.g. in tests).
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		return rl.logger
	}
	return slog.Default()
}

// ContextWithLogAttrs records attributes against the current request so the
// request-logging middleware can include them in the final request log.
// It is a no-op when the context has no request logger.
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	rl, ok := ctx.Value(requestLogKey).(*requestLog)
	if !ok {
		return
	}
	rl.mu.Lock()
	rl.attrs = append(rl.attrs, attrs...)
	rl.mu.Unlock()
}

// ContextLogAttrs returns the attributes accumulated for the current request.
func ContextLogAttrs(ctx context.Context) []slog.Attr {
	rl, ok := ctx.Value(requestLogKey).(*requestLog)
	if !ok {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return append([]slog.Attr(nil), rl.attrs...)
}
