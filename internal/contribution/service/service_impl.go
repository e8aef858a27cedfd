package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/condopay/internal/clock"
	"github.com/smallbiznis/condopay/internal/config"
	"github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/contribution/monthkey"
	"github.com/smallbiznis/condopay/internal/contribution/reconcile"
	"github.com/smallbiznis/condopay/internal/contribution/snapshot"
	"github.com/smallbiznis/condopay/internal/contribution/status"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"github.com/smallbiznis/condopay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/condopay/internal/payment/domain"
	residentdomain "github.com/smallbiznis/condopay/internal/resident/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	ResidentRepo     residentdomain.Repository
	PaymentRepo      paymentdomain.Repository
	Store            snapshot.Store
	Config           *config.ReconcileConfigHolder
	Metrics          *metrics.Metrics          `optional:"true"`
	ReconcileMetrics *metrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	residentRepo     residentdomain.Repository
	paymentRepo      paymentdomain.Repository
	store            snapshot.Store
	cfg              *config.ReconcileConfigHolder
	metrics          *metrics.Metrics
	reconcileMetrics *metrics.ReconcileMetrics
	tracer           trace.Tracer
	generation       atomic.Uint64
}

func NewService(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("contribution.service"),
		clock:            p.Clock,
		residentRepo:     p.ResidentRepo,
		paymentRepo:      p.PaymentRepo,
		store:            p.Store,
		cfg:              p.Config,
		metrics:          p.Metrics,
		reconcileMetrics: p.ReconcileMetrics,
		tracer:           otel.Tracer("condopay/contribution"),
	}
}

func (s *Service) GetReport(ctx context.Context, condominiumID snowflake.ID, year int) (domain.Snapshot, error) {
	if condominiumID == 0 {
		return domain.Snapshot{}, domain.ErrInvalidCondominium
	}
	if !domain.ValidYear(year) {
		return domain.Snapshot{}, domain.ErrInvalidYear
	}

	trigger := domain.TriggerFromContext(ctx)
	ctx, span := s.tracer.Start(ctx, "contribution.GetReport", trace.WithAttributes(
		attribute.String("condominium_id", condominiumID.String()),
		attribute.Int("year", year),
		attribute.String("trigger", trigger),
	))
	defer span.End()

	start := time.Now()
	residents, payments, err := s.fetch(ctx, condominiumID)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		// Superseded by a newer recompute or the caller went away.
		span.SetStatus(codes.Unset, "canceled")
		return domain.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrFetchFailed, ctx.Err())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.reconcileMetrics.ObserveRecompute(trigger, metrics.RecomputeResultError, time.Since(start))
		s.reconcileMetrics.IncRecomputeError(err)
		return s.fallback(ctx, condominiumID, year, err)
	}

	cfg := s.cfg.Get()
	report := reconcile.Aggregate(reconcile.Input{
		CondominiumID: condominiumID,
		Year:          year,
		Residents:     residents,
		Payments:      payments,
	}, reconcile.Options{
		Resolver:       monthkey.NewResolver(cfg.TokenTable()),
		OccupancyFloor: cfg.OccupancyFloor,
	})
	s.observe(ctx, report)

	snap := domain.Snapshot{
		Report:      report,
		Generation:  s.generation.Add(1),
		GeneratedAt: s.clock.Now(),
	}
	if ctx.Err() != nil {
		// A newer recompute owns the stored snapshot now.
		s.log.Debug("skip storing snapshot of canceled recompute", zap.String("condominium_id", condominiumID.String()))
	} else if err := s.store.Put(ctx, snap, cfg.SnapshotTTL); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("store snapshot failed", zap.String("condominium_id", condominiumID.String()), zap.Error(err))
	}

	s.reconcileMetrics.ObserveRecompute(trigger, metrics.RecomputeResultOK, time.Since(start))
	s.reconcileMetrics.ObserveRows(len(report.Rows))
	span.SetAttributes(attribute.Int("rows", len(report.Rows)))
	return snap, nil
}

// fetch reads residents and payments concurrently. Either failure aborts both.
func (s *Service) fetch(ctx context.Context, condominiumID snowflake.ID) ([]residentdomain.Resident, []paymentdomain.Payment, error) {
	var (
		residents []residentdomain.Resident
		payments  []paymentdomain.Payment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.residentRepo.ListByCondominium(gctx, s.db, condominiumID)
		if err != nil {
			return fmt.Errorf("list residents: %w", err)
		}
		residents = items
		return nil
	})
	g.Go(func() error {
		items, err := s.paymentRepo.ListByCondominium(gctx, s.db, condominiumID)
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		payments = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return residents, payments, nil
}

func (s *Service) fallback(ctx context.Context, condominiumID snowflake.ID, year int, cause error) (domain.Snapshot, error) {
	fetchErr := fmt.Errorf("%w: %w", domain.ErrFetchFailed, cause)

	log := obslogger.WithContext(ctx, s.log)
	log.Warn("contribution fetch failed",
		zap.String("condominium_id", condominiumID.String()),
		zap.Int("year", year),
		zap.Error(cause),
	)

	// The request context may be what failed; the cache lookup gets its own budget.
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	snap, ok, err := s.store.Get(lookupCtx, condominiumID, year)
	if err != nil {
		log.Warn("load last known snapshot failed", zap.Error(err))
		return domain.Snapshot{}, fetchErr
	}
	if !ok {
		return domain.Snapshot{}, fetchErr
	}

	snap.Stale = true
	s.reconcileMetrics.IncStaleServed()
	return snap, fetchErr
}

func (s *Service) observe(ctx context.Context, report domain.Report) {
	log := obslogger.WithContext(ctx, s.log)
	for _, dropped := range report.Dropped {
		log.Warn("payment excluded from contribution report",
			zap.String("condominium_id", report.CondominiumID.String()),
			zap.String("payment_id", dropped.PaymentID.String()),
			zap.String("reference_month", dropped.ReferenceMonth),
			zap.String("reason", dropped.Reason),
		)
		s.metrics.RecordDroppedPayment(ctx, dropped.Reason)
	}

	corrections := 0
	for _, anomaly := range report.Anomalies {
		if anomaly.Kind != domain.AnomalyMonthCorrected {
			continue
		}
		corrections++
		log.Info("reference month overridden by description",
			zap.String("payment_id", anomaly.PaymentID.String()),
			zap.String("reference_month", anomaly.ReferenceMonth),
			zap.String("month_key", anomaly.MonthKey),
			zap.String("token", anomaly.Token),
		)
	}
	s.metrics.RecordMonthCorrections(ctx, corrections)
}

func (s *Service) GetResidentOverview(ctx context.Context, residentID snowflake.ID, year int) (domain.ResidentOverview, error) {
	if residentID == 0 {
		return domain.ResidentOverview{}, domain.ErrInvalidResident
	}
	if !domain.ValidYear(year) {
		return domain.ResidentOverview{}, domain.ErrInvalidYear
	}

	resident, err := s.residentRepo.FindByID(ctx, s.db, residentID)
	if err != nil {
		return domain.ResidentOverview{}, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	if resident == nil {
		return domain.ResidentOverview{}, domain.ErrResidentNotFound
	}

	payments, err := s.paymentRepo.ListByResident(ctx, s.db, residentID)
	if err != nil {
		return domain.ResidentOverview{}, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}

	cfg := s.cfg.Get()
	report := reconcile.Aggregate(reconcile.Input{
		CondominiumID: resident.CondominiumID,
		Year:          year,
		Residents:     []residentdomain.Resident{*resident},
		Payments:      payments,
	}, reconcile.Options{
		Resolver:       monthkey.NewResolver(cfg.TokenTable()),
		OccupancyFloor: cfg.OccupancyFloor,
	})
	row := report.Rows[0]

	overview := domain.ResidentOverview{
		ResidentID:    resident.ID,
		CondominiumID: resident.CondominiumID,
		Year:          year,
		Row:           row,
		TotalPaid:     row.TotalPaid,
		TotalDebt:     row.TotalDebt,
	}
	for _, cell := range row.Months {
		if cell == nil {
			overview.AbsentMonths++
			continue
		}
		switch cell.Status {
		case status.Paid:
			overview.PaidMonths++
		case status.Pending:
			overview.PendingMonths++
		default:
			overview.OverdueMonths++
		}
	}

	for _, p := range payments {
		if status.Classify(p.Status, p.PaymentDate) != status.Paid {
			continue
		}
		key, err := monthkey.ParseReferenceMonth(p.ReferenceMonth)
		if err != nil || key.Year != year {
			continue
		}
		if overview.LastPaymentDate == nil || p.PaymentDate.After(*overview.LastPaymentDate) {
			paidAt := *p.PaymentDate
			overview.LastPaymentDate = &paidAt
		}
	}

	return overview, nil
}
