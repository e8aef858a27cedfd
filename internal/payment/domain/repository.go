package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// ListByCondominium orders by reference month ascending, then id.
	ListByCondominium(ctx context.Context, db *gorm.DB, condominiumID snowflake.ID) ([]Payment, error)
	ListByResident(ctx context.Context, db *gorm.DB, residentID snowflake.ID) ([]Payment, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, paymentDate *time.Time, updatedAt time.Time) error
}
