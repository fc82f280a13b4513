package infrastructure

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies the engine's spans.
const tracerName = "panelrep"

// InitTracing installs a tracer provider writing spans to w. Returns a
// shutdown func the caller runs at exit. Pass io.Discard to keep the
// span plumbing without output.
func InitTracing(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Tracer returns the engine tracer from the installed provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartStageSpan opens a span for one pipeline stage, stamped with the
// run ID from context.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, "pipeline."+stage)
	if id := RunIDFromContext(ctx); id != "" {
		span.SetAttributes(attribute.String("run_id", id))
	}
	return ctx, span
}
