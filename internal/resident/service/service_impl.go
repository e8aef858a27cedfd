package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	changefeed "github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/smallbiznis/condopay/internal/clock"
	condominiumdomain "github.com/smallbiznis/condopay/internal/condominium/domain"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"github.com/smallbiznis/condopay/internal/resident/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            domain.Repository
	CondominiumRepo condominiumdomain.Repository
	Publisher       changefeed.Publisher
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            domain.Repository
	condominiumRepo condominiumdomain.Repository
	publisher       changefeed.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("resident.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		condominiumRepo: p.CondominiumRepo,
		publisher:       p.Publisher,
	}
}

func (s *Service) Register(ctx context.Context, condominiumID snowflake.ID, req domain.RegisterResidentRequest) (domain.Resident, error) {
	if condominiumID == 0 {
		return domain.Resident{}, domain.ErrInvalidCondominium
	}

	apartment := strings.TrimSpace(req.ApartmentNumber)
	if apartment == "" {
		return domain.Resident{}, domain.ErrInvalidApartment
	}
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	if first == "" && last == "" {
		return domain.Resident{}, domain.ErrInvalidName
	}

	var floor *string
	if req.Floor != nil {
		if value := strings.TrimSpace(*req.Floor); value != "" {
			floor = &value
		}
	}

	condo, err := s.condominiumRepo.FindByID(ctx, s.db, condominiumID)
	if err != nil {
		return domain.Resident{}, err
	}
	if condo == nil {
		return domain.Resident{}, domain.ErrInvalidCondominium
	}

	now := s.clock.Now()
	resident := domain.Resident{
		ID:              s.genID.Generate(),
		CondominiumID:   condominiumID,
		ApartmentNumber: apartment,
		Floor:           floor,
		FirstName:       first,
		LastName:        last,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, &resident); err != nil {
		return domain.Resident{}, err
	}

	event := changefeed.NewEvent(changefeed.TableResidents, changefeed.OpInsert, condominiumID, resident.ID, now)
	if err := s.publisher.Publish(ctx, event); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("publish resident change failed", zap.String("resident_id", resident.ID.String()), zap.Error(err))
	}

	return resident, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Resident, error) {
	if id == 0 {
		return domain.Resident{}, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Resident{}, err
	}
	if item == nil {
		return domain.Resident{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, condominiumID snowflake.ID) ([]domain.Resident, error) {
	if condominiumID == 0 {
		return nil, domain.ErrInvalidCondominium
	}
	return s.repo.ListByCondominium(ctx, s.db, condominiumID)
}
