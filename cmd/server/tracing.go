package main

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logExporter writes finished spans to the debug log.
type logExporter struct {
	logger zerolog.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		ev := e.logger.Debug().
			Str("span", s.Name()).
			Str("trace_id", s.SpanContext().TraceID().String()).
			Time("at", s.StartTime())
		for _, kv := range s.Attributes() {
			ev = ev.Str(string(kv.Key), kv.Value.Emit())
		}
		ev.Msg("span")
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }

// newTracerProvider installs a global provider that batches spans to the log.
func newTracerProvider(logger zerolog.Logger) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&logExporter{logger: logger.With().Str("system", "tracing").Logger()}),
	)
	otel.SetTracerProvider(tp)
	return tp
}
