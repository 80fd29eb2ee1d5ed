// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and provides
// correlation ID propagation through context.Context so a trade, candle
// or alert can be followed across services.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

type ctxKey string

const correlationKey ctxKey = "correlation_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithCorrelation stores a correlation ID in the context for downstream propagation.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// Correlation extracts the correlation ID from context. Returns "" if not set.
func Correlation(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey).(string); ok {
		return v
	}
	return ""
}

// EventID builds a correlation ID from a symbol and an event timestamp in
// milliseconds. Every error log for a candle or trade carries one so records
// can be joined across the pipeline.
func EventID(symbol string, tsMS int64) string {
	return fmt.Sprintf("%s-%d", symbol, tsMS)
}

// WithEvent returns slog attributes including the correlation ID from context.
// Usage: slog.Warn("msg", logger.WithEvent(ctx)...)
func WithEvent(ctx context.Context) []any {
	id := Correlation(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("correlation_id", id)}
}
