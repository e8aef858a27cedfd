package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("reason", "malformed_reference_month"),
		attribute.String("condominium_id", "456"),
		attribute.String("table", "payments"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "reason" && attrs[1].Key != "reason" {
		t.Fatalf("expected reason to be retained")
	}
	if attrs[0].Key != "table" && attrs[1].Key != "table" {
		t.Fatalf("expected table to be retained")
	}
}

func TestRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordDroppedPayment(ctx, "x")
	m.RecordMonthCorrections(ctx, 3)
	m.RecordPaymentWrite(ctx, "create")
	m.RecordFeedEvent(ctx, "payments", "INSERT")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordDroppedPayment(context.Background(), "malformed_reference_month")
	m.RecordMonthCorrections(context.Background(), 2)
}

func TestCountersReachReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "condopay-test"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordDroppedPayment(ctx, "unknown_resident")
	m.RecordDroppedPayment(ctx, "unknown_resident")
	m.RecordMonthCorrections(ctx, 0)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	if got := totals["condopay_contribution_dropped_payments_total"]; got != 2 {
		t.Fatalf("dropped payments = %d, want 2", got)
	}
	if _, ok := totals["condopay_contribution_month_corrections_total"]; ok {
		t.Fatalf("zero corrections should not be recorded")
	}
}

func TestNewProviderDisabledIsNoop(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, ok := provider.(noop.MeterProvider); !ok {
		t.Fatalf("expected noop provider without endpoint, got %T", provider)
	}
}
