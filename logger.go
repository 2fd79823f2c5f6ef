package segstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with segstore-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithDataset adds a dataset field to the logger.
func (l *Logger) WithDataset(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dataset", id),
	}
}

// WithPath adds a path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogFileSkipped logs a recording that contributed no rows.
func (l *Logger) LogFileSkipped(ctx context.Context, path string, reason SkipReason, err error) {
	l.WarnContext(ctx, "recording skipped",
		"path", path,
		"reason", string(reason),
		"error", err,
	)
}

// LogFileProcessed logs a recording whose windows were stored.
func (l *Logger) LogFileProcessed(ctx context.Context, path, dataset, subject string, rows int, elapsed time.Duration) {
	l.DebugContext(ctx, "recording processed",
		"path", path,
		"dataset", dataset,
		"subject", subject,
		"rows", rows,
		"duration", elapsed,
	)
}

// LogPopulate logs the outcome of a population run.
func (l *Logger) LogPopulate(ctx context.Context, r Report, err error) {
	if err != nil {
		l.ErrorContext(ctx, "populate failed",
			"files", r.Files,
			"rows", r.Rows,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "populate completed",
		"files", r.Files,
		"processed", r.Processed,
		"skipped", r.SkippedTotal(),
		"rows", r.Rows,
		"datasets", r.Datasets,
		"subjects", r.Subjects,
		"shape", r.Shape.String(),
		"duration", r.Duration,
	)
}

// LogEpoch logs the end of a loader epoch.
func (l *Logger) LogEpoch(ctx context.Context, epoch, batches, samples int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "epoch failed",
			"epoch", epoch,
			"batches", batches,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "epoch completed",
		"epoch", epoch,
		"batches", batches,
		"samples", samples,
		"duration", elapsed,
	)
}
