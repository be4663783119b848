// Package telemetry wires OpenTelemetry tracing for the world server.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/l1jgo/worldcore/internal/config"
)

const instrumentation = "github.com/l1jgo/worldcore/internal/world"

// Setup returns the tracer partitions record tick spans with, and a
// shutdown function that flushes pending spans. Tracing is opt-in: when
// disabled or without an endpoint the tracer is a no-op and nothing is
// registered globally.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (trace.Tracer, func(context.Context) error, error) {
	nop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop.NewTracerProvider().Tracer(instrumentation), nop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, nop, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, nop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		// Ticks run ten times a second per partition.
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.01))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Tracer(instrumentation), tp.Shutdown, nil
}
