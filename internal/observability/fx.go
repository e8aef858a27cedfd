package observability

import (
	"github.com/smallbiznis/condopay/internal/observability/logger"
	"github.com/smallbiznis/condopay/internal/observability/metrics"
	"github.com/smallbiznis/condopay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the root *zap.Logger, the tracer and meter providers and
// the HTTP and reconcile instruments.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(provideLoggerConfig, logger.New),
	fx.Provide(provideTracingConfig, tracing.NewProvider),
	fx.Provide(
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.ReconcileWithConfig,
	),
	// Nothing depends on the tracer provider directly; spans reach it
	// through the otel global it installs.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:        cfg.ServiceName,
		Environment:        cfg.Environment,
		Version:            cfg.Version,
		Level:              cfg.LogLevel,
		Format:             cfg.LogFormat,
		Debug:              cfg.Debug(),
		SamplingInitial:    cfg.LogSamplingInitial,
		SamplingThereafter: cfg.LogSamplingThereafter,
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
		Interval:         cfg.MetricsInterval,
	}
}
