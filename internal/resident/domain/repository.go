package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, resident *Resident) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Resident, error)
	// ListByCondominium orders by apartment number, then id.
	ListByCondominium(ctx context.Context, db *gorm.DB, condominiumID snowflake.ID) ([]Resident, error)
}
