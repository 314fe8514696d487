// Package observability provides OpenTelemetry setup for tracing, metrics,
// and structured logging per ADR-012. Telemetry must never carry session
// material: the redacting log handler and the attribute conventions here
// keep tokens and cookie values out of every signal.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig holds configuration for the tracer provider.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // Empty string disables OTLP export (uses noop)
}

// serviceResource builds the resource attached to every signal. Service
// attributes only: merging resource.Default() causes schema URL conflicts
// between otel SDK versions.
func serviceResource(name, version, environment string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
		semconv.DeploymentEnvironment(environment),
	)
}

// TracerProvider wraps the OpenTelemetry tracer provider with shutdown capabilities.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracer initializes the OpenTelemetry tracer provider and installs it
// globally. Returns a TracerProvider that must be shut down on exit.
func InitTracer(ctx context.Context, cfg TracerConfig) (*TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(serviceResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(), // TODO: Configure TLS for production
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes any remaining spans and shuts down the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// SpanFromContext extracts the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceIDFromContext extracts the trace ID from context as a string.
// Returns empty string if no trace is active.
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}
