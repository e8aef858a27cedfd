package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/condopay/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("OTEL_ENABLED", "off")

	cfg := LoadConfig(config.Config{Environment: "production", AppVersion: "1.2.3", OTLPEndpoint: "collector:4317"})

	assert.Equal(t, "condopay", cfg.ServiceName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.True(t, cfg.Debug())
}

func TestDebugFollowsEnvironment(t *testing.T) {
	assert.True(t, Config{Environment: "development", LogLevel: "info"}.Debug())
	assert.False(t, Config{Environment: "production", LogLevel: "info"}.Debug())
}

func TestLoadConfigClampsSamplingAndReadsInterval(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "3")
	t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "30s")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")

	cfg := LoadConfig(config.Config{AppName: "condopay-api", Environment: "production"})

	assert.Equal(t, "condopay-api", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.Equal(t, 30*time.Second, cfg.MetricsInterval)
	assert.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 100, cfg.LogSamplingInitial)
	assert.False(t, cfg.Debug())
}
