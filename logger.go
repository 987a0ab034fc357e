package vexa

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with engine-specific helpers so operations log
// with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.Level(1000), // Unreachable level
		})),
	}
}

// LogSearch logs one search operation.
func (l *Logger) LogSearch(ctx context.Context, requestID string, k, results int, fromCache bool, latency time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"request_id", requestID,
			"k", k,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"request_id", requestID,
		"k", k,
		"results", results,
		"from_cache", fromCache,
		"latency_ms", float64(latency.Nanoseconds())/1e6,
	)
}

// LogAdd logs a vector insertion.
func (l *Logger) LogAdd(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add vectors failed",
			"count", count,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "vectors added", "count", count)
}

// LogRemove logs a vector removal.
func (l *Logger) LogRemove(ctx context.Context, requested, removed int) {
	l.DebugContext(ctx, "vectors removed",
		"requested", requested,
		"removed", removed,
	)
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, op, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot completed",
		"op", op,
		"name", name,
	)
}

// LogState logs a lifecycle transition.
func (l *Logger) LogState(from, to State) {
	l.Info("state changed",
		"from", from.String(),
		"to", to.String(),
	)
}
