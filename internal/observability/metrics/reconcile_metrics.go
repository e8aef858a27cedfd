package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	RecomputeResultOK        = "ok"
	RecomputeResultError     = "error"
	RecomputeResultDiscarded = "discarded"
)

const (
	TriggerInitial = "initial"
	TriggerFeed    = "feed"
	TriggerManual  = "manual"
	TriggerRequest = "request"
)

const (
	ReasonDeadlineExceeded = "deadline_exceeded"
	ReasonCanceled         = "canceled"
	ReasonDB               = "db"
	ReasonUnknown          = "unknown"
)

// ReconcileMetrics tracks contribution report recomputes and live sessions.
type ReconcileMetrics struct {
	recomputes      *prometheus.CounterVec
	recomputeErrors *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	liveSessions    prometheus.Gauge
	staleServed     prometheus.Counter
	snapshotRows    prometheus.Histogram
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the process-wide reconcile metrics registered on the default registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = NewReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

func NewReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "condopay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &ReconcileMetrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "condopay_contribution_recomputes_total",
			Help:        "Contribution report recomputes by trigger and result.",
			ConstLabels: constLabels,
		}, []string{"trigger", "result"}),
		recomputeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "condopay_contribution_recompute_errors_total",
			Help:        "Failed contribution report recomputes by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "condopay_contribution_recompute_duration_seconds",
			Help:        "Fetch plus aggregation latency of a contribution report.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "condopay_livesync_sessions",
			Help:        "Open live contribution sessions.",
			ConstLabels: constLabels,
		}),
		staleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "condopay_contribution_stale_served_total",
			Help:        "Reports answered from the last known good snapshot after a fetch failure.",
			ConstLabels: constLabels,
		}),
		snapshotRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "condopay_contribution_report_rows",
			Help:        "Resident rows per computed report.",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.recomputes,
		m.recomputeErrors,
		m.duration,
		m.liveSessions,
		m.staleServed,
		m.snapshotRows,
	)
	return m
}

func (m *ReconcileMetrics) ObserveRecompute(trigger, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(trigger, result).Inc()
	if result != RecomputeResultDiscarded {
		m.duration.WithLabelValues(trigger).Observe(duration.Seconds())
	}
}

func (m *ReconcileMetrics) IncRecomputeError(err error) {
	if m == nil {
		return
	}
	m.recomputeErrors.WithLabelValues(ClassifyRecomputeError(err)).Inc()
}

func (m *ReconcileMetrics) ObserveRows(rows int) {
	if m == nil {
		return
	}
	m.snapshotRows.Observe(float64(rows))
}

func (m *ReconcileMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.liveSessions.Inc()
}

func (m *ReconcileMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.liveSessions.Dec()
}

func (m *ReconcileMetrics) IncStaleServed() {
	if m == nil {
		return
	}
	m.staleServed.Inc()
}

// ClassifyRecomputeError maps fetch errors to low-cardinality reasons.
func ClassifyRecomputeError(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case isDBError(err):
		return ReasonDB
	default:
		return ReasonUnknown
	}
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
