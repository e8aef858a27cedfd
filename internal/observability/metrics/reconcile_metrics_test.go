package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyRecomputeError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: ReasonCanceled},
		{name: "pg", err: &pgconn.PgError{Code: "57P01"}, want: ReasonDB},
		{name: "gorm", err: gorm.ErrInvalidDB, want: ReasonDB},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: ReasonUnknown},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyRecomputeError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveRecomputeAndSessions(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewReconcileMetrics(registry, Config{ServiceName: "condopay", Environment: "test"})

	m.ObserveRecompute(TriggerFeed, RecomputeResultOK, 20*time.Millisecond)
	m.ObserveRecompute(TriggerFeed, RecomputeResultDiscarded, 0)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	if got := testutil.ToFloat64(m.recomputes.WithLabelValues(TriggerFeed, RecomputeResultOK)); got != 1 {
		t.Fatalf("expected 1 ok recompute, got %v", got)
	}
	if got := testutil.ToFloat64(m.recomputes.WithLabelValues(TriggerFeed, RecomputeResultDiscarded)); got != 1 {
		t.Fatalf("expected 1 discarded recompute, got %v", got)
	}
	if got := testutil.ToFloat64(m.liveSessions); got != 1 {
		t.Fatalf("expected 1 live session, got %v", got)
	}
}
