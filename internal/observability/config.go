package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/condopay/internal/config"
	"github.com/spf13/viper"
)

// Config is the logging, tracing and metrics setup resolved at start.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel              string
	LogFormat             string
	LogSamplingInitial    int
	LogSamplingThereafter int

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
	MetricsInterval      time.Duration
}

// LoadConfig layers the observability variables over the app config. The
// OTEL_* names follow the OpenTelemetry SDK conventions so a collector
// sidecar can be configured the same way for every service.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_SAMPLING_INITIAL", 100)
	v.SetDefault("LOG_SAMPLING_THEREAFTER", 100)
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	v.SetDefault("OTEL_METRIC_EXPORT_INTERVAL", 10*time.Second)

	protocol := v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")
	if traces := v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"); strings.TrimSpace(traces) != "" {
		protocol = traces
	}

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "condopay"
	}

	return Config{
		ServiceName:           serviceName,
		Environment:           strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:               strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:              lower(v.GetString("LOG_LEVEL")),
		LogFormat:             lower(v.GetString("LOG_FORMAT")),
		LogSamplingInitial:    v.GetInt("LOG_SAMPLING_INITIAL"),
		LogSamplingThereafter: v.GetInt("LOG_SAMPLING_THEREAFTER"),
		OtelEnabled:           enabled(v.GetString("OTEL_ENABLED")),
		OtelExporterEndpoint:  strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol:  lower(protocol),
		OtelSamplingRatio:     clampRatio(v.GetFloat64("OTEL_SAMPLING_RATIO")),
		MetricsInterval:       v.GetDuration("OTEL_METRIC_EXPORT_INTERVAL"),
	}
}

// Debug is true for debug logging and for non-production environments.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// enabled accepts the spellings operators actually put in env files.
func enabled(s string) bool {
	switch lower(s) {
	case "0", "false", "no", "n", "off":
		return false
	}
	return true
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
