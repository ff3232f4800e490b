package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds an otel TracerProvider for gistd's
// handshake/refresh spans. No OTLP exporter is wired (see DESIGN.md):
// absent an operator-supplied collector endpoint, the default
// sampler/span-processor pipeline simply produces spans nothing reads,
// which is harmless and keeps the dependency exercised.
func NewTracerProvider(serviceName string) *sdktrace.TracerProvider {
	res := sdkresource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the named otel tracer. The state machine creates no
// spans, and nothing in gistd calls Tracer or NewTracerProvider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
