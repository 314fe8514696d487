package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig holds configuration for the meter provider.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // Empty string disables OTLP export
}

// MetricsProvider wraps the OpenTelemetry meter provider with shutdown capabilities.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
}

// InitMetrics initializes the OpenTelemetry meter provider and installs it
// globally. Without an endpoint no reader is registered, so instruments
// record into the void at zero cost and tests leak no reader goroutines.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*MetricsProvider, error) {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(serviceResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // TODO: Configure TLS for production
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	provider := sdkmetric.NewMeterProvider(opts...)

	otel.SetMeterProvider(provider)

	return &MetricsProvider{provider: provider}, nil
}

// Shutdown flushes any remaining metrics and shuts down the provider.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	return mp.provider.Shutdown(ctx)
}
