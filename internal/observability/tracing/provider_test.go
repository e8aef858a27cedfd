package tracing

import (
	"context"
	"testing"

	"github.com/smallbiznis/condopay/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestCorrelationSpanProcessor(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&correlationSpanProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := correlation.WithID(context.Background(), "01HZX")
	_, span := tp.Tracer("test").Start(ctx, "recompute")
	span.End()
	_, bare := tp.Tracer("test").Start(context.Background(), "bare")
	bare.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Contains(t, ended[0].Attributes(), attribute.String("correlation_id", "01HZX"))
	assert.Empty(t, ended[1].Attributes())
}

func TestNewProviderWithoutExporter(t *testing.T) {
	tp, err := NewProvider(nil, Config{ServiceName: "condopay", SamplingRatio: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter(context.Background(), "thrift", "collector:4317")
	assert.EqualError(t, err, `unsupported otlp protocol "thrift"`)
}
