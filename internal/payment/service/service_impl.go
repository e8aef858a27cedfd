package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	changefeed "github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/smallbiznis/condopay/internal/clock"
	"github.com/smallbiznis/condopay/internal/contribution/monthkey"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"github.com/smallbiznis/condopay/internal/observability/metrics"
	"github.com/smallbiznis/condopay/internal/payment/domain"
	residentdomain "github.com/smallbiznis/condopay/internal/resident/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "BRL"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	ResidentRepo residentdomain.Repository
	Publisher    changefeed.Publisher
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	residentRepo residentdomain.Repository
	publisher    changefeed.Publisher
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		residentRepo: p.ResidentRepo,
		publisher:    p.Publisher,
		metrics:      p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, condominiumID snowflake.ID, req domain.CreatePaymentRequest) (domain.Payment, error) {
	if condominiumID == 0 {
		return domain.Payment{}, domain.ErrInvalidCondominium
	}
	if req.ResidentID == 0 {
		return domain.Payment{}, domain.ErrInvalidResident
	}
	if !req.Amount.IsPositive() {
		return domain.Payment{}, domain.ErrInvalidAmount
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return domain.Payment{}, domain.ErrInvalidCurrency
	}

	key, err := monthkey.ParseReferenceMonth(req.ReferenceMonth)
	if err != nil {
		return domain.Payment{}, domain.ErrInvalidReferenceMonth
	}

	resident, err := s.residentRepo.FindByID(ctx, s.db, req.ResidentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if resident == nil || resident.CondominiumID != condominiumID {
		return domain.Payment{}, domain.ErrInvalidResident
	}

	now := s.clock.Now()
	payment := domain.Payment{
		ID:             s.genID.Generate(),
		ResidentID:     resident.ID,
		CondominiumID:  condominiumID,
		Amount:         req.Amount.Round(2),
		Currency:       currency,
		ReferenceMonth: key.String(),
		DueDate:        req.DueDate,
		Status:         domain.StatusPending,
		Description:    strings.TrimSpace(req.Description),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	s.publish(ctx, changefeed.OpInsert, payment)
	s.metrics.RecordPaymentWrite(ctx, "create")
	return payment, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID, req domain.ApprovePaymentRequest) (domain.Payment, error) {
	payment, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}

	switch strings.ToLower(strings.TrimSpace(payment.Status)) {
	case domain.StatusPaid:
		return domain.Payment{}, domain.ErrAlreadyPaid
	case domain.StatusCancelled:
		return domain.Payment{}, domain.ErrCancelled
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paidAt = req.PaymentDate.UTC()
	}

	if err := s.repo.UpdateStatus(ctx, s.db, payment.ID, domain.StatusPaid, &paidAt, now); err != nil {
		return domain.Payment{}, err
	}
	payment.Status = domain.StatusPaid
	payment.PaymentDate = &paidAt
	payment.UpdatedAt = now

	s.publish(ctx, changefeed.OpUpdate, payment)
	s.metrics.RecordPaymentWrite(ctx, "approve")
	return payment, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	payment, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}

	switch strings.ToLower(strings.TrimSpace(payment.Status)) {
	case domain.StatusPaid:
		return domain.Payment{}, domain.ErrAlreadyPaid
	case domain.StatusCancelled:
		return payment, nil
	}

	now := s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, s.db, payment.ID, domain.StatusCancelled, nil, now); err != nil {
		return domain.Payment{}, err
	}
	payment.Status = domain.StatusCancelled
	payment.PaymentDate = nil
	payment.UpdatedAt = now

	s.publish(ctx, changefeed.OpUpdate, payment)
	s.metrics.RecordPaymentWrite(ctx, "cancel")
	return payment, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	if id == 0 {
		return domain.Payment{}, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if item == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *item, nil
}

// publish runs after the write committed; a failed publish only delays live views.
func (s *Service) publish(ctx context.Context, op changefeed.Operation, payment domain.Payment) {
	event := changefeed.NewEvent(changefeed.TablePayments, op, payment.CondominiumID, payment.ID, s.clock.Now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("publish payment change failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("op", string(op)),
			zap.Error(err),
		)
	}
}
