package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/condopay/internal/clock"
	"github.com/smallbiznis/condopay/internal/condominium/domain"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"github.com/smallbiznis/condopay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultCurrency = "BRL"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("condominium.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCondominiumRequest) (domain.Condominium, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Condominium{}, domain.ErrInvalidName
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return domain.Condominium{}, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	item := domain.Condominium{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Currency:  currency,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Condominium{}, domain.ErrDuplicateSlug
		}
		return domain.Condominium{}, err
	}

	obslogger.WithContext(ctx, s.log).Info("condominium created", zap.String("condominium_id", item.ID.String()), zap.String("slug", item.Slug))
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Condominium, error) {
	if id == 0 {
		return domain.Condominium{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Condominium{}, err
	}
	if item == nil {
		return domain.Condominium{}, domain.ErrNotFound
	}
	return *item, nil
}
