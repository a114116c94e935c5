package main

import (
	"context"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTelemetry installs SDK-backed tracer and meter providers so the
// spans and histograms recorded throughout internal/vdb and internal/lock
// are actually collected instead of discarded by the otel API's default
// no-op global providers. No exporter is registered here — wiring one
// (OTLP, stdout, etc.) is an operational decision for whoever deploys
// bridgectl, not something this CLI should hardcode.
func setupTelemetry() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}
}
