// Package telemetry wires the engine's global OTel tracer and meter
// providers. The package-level tracer/meter elsewhere in this module
// (graph.graphTracer, graph.graphMetrics; no other package defines its own
// instruments) is obtained from the global otel providers at
// package init time, so it starts as a no-op and begins forwarding real
// spans and metrics the moment Init runs — the same delegating-provider
// pattern the teacher's storage layer documents for its own doltTracer.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter selects where spans and metrics go.
type Exporter string

const (
	// ExporterNone leaves the global no-op providers in place.
	ExporterNone Exporter = "none"
	// ExporterStdout writes human-readable spans/metrics to stdout, useful
	// for local runs of cmd/versionctl.
	ExporterStdout Exporter = "stdout"
	// ExporterOTLP ships metrics to an OTLP/HTTP collector. Tracing over
	// OTLP is left to a caller that needs it; stdout tracing is enough for
	// this engine's own CLI.
	ExporterOTLP Exporter = "otlp"
)

// Config selects an exporter and names the service reporting telemetry.
type Config struct {
	Exporter    Exporter
	ServiceName string
	OTLPEndpoint string // host:port, only used when Exporter == ExporterOTLP
}

// Shutdown flushes and releases whatever providers Init installed.
type Shutdown func(context.Context) error

// Init installs tracer and meter providers matching cfg.Exporter as the
// OTel globals, returning a Shutdown to call during the engine's own
// shutdown sequence. Calling Init more than once replaces the previous
// globals; callers should Init exactly once per process.
func Init(ctx context.Context, cfg Config) (Shutdown, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "versionengine"
	}

	switch cfg.Exporter {
	case "", ExporterNone:
		return func(context.Context) error { return nil }, nil

	case ExporterStdout:
		traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("building stdout trace exporter: %w", err)
		}
		metricExporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("building stdout metric exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
		mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter)))
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		return shutdownBoth(tp, mp), nil

	case ExporterOTLP:
		metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("building OTLP metric exporter: %w", err)
		}
		mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter)))
		otel.SetMeterProvider(mp)
		return func(ctx context.Context) error { return mp.Shutdown(ctx) }, nil

	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}
}

func shutdownBoth(tp *sdktrace.TracerProvider, mp *metric.MeterProvider) Shutdown {
	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}
}
