// Package infrastructure wires the ambient concerns of the engine:
// structured logging and run metrics.
package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"panelrep/internal/config"
)

// contextKey is a type for context keys.
type contextKey string

// RunIDContextKey stores the pipeline run ID in context so every log
// line of a run can be correlated.
const RunIDContextKey contextKey = "run_id"

// NewLogger builds the application logger from configuration.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerTo(cfg, os.Stdout)
}

// NewLoggerTo builds a logger writing to an explicit sink. Tests pass
// io.Discard or a buffer.
func NewLoggerTo(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(&runIDHandler{Handler: handler})
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRunID stamps a run ID onto the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDContextKey, runID)
}

// RunIDFromContext extracts the run ID, empty when absent.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDContextKey).(string); ok {
		return id
	}
	return ""
}

// runIDHandler injects the run ID from context into every record.
type runIDHandler struct {
	slog.Handler
}

func (h *runIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RunIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *runIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runIDHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *runIDHandler) WithGroup(name string) slog.Handler {
	return &runIDHandler{Handler: h.Handler.WithGroup(name)}
}
