// Package telemetry installs the global OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrUnknownExporter is returned for an unsupported exporter name.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Shutdown flushes and stops the installed provider.
type Shutdown func(context.Context) error

// Service identifies the process on exported spans.
type Service struct {
	Name        string
	Version     string
	Environment string
}

// Setup installs a tracer provider for cfg and returns its Shutdown. When
// the exporter is none the global no-op provider is left in place. Stdout
// spans are written to w so command output stays clean.
func Setup(ctx context.Context, cfg *Config, svc Service, w io.Writer) (Shutdown, error) {
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg, w)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", svc.Name),
		attribute.String("service.version", svc.Version),
		attribute.String("deployment.environment", svc.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg *Config, w io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.Exporter)
	}
}
