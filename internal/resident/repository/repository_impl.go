package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/condopay/internal/resident/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, resident *domain.Resident) error {
	return db.WithContext(ctx).Create(resident).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Resident, error) {
	var item domain.Resident
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByCondominium(ctx context.Context, db *gorm.DB, condominiumID snowflake.ID) ([]domain.Resident, error) {
	var items []domain.Resident
	err := db.WithContext(ctx).
		Where("condominium_id = ?", condominiumID).
		Order("apartment_number asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
