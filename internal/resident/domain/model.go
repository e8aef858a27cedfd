package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Resident struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CondominiumID   snowflake.ID `gorm:"not null;index:idx_residents_condominium,priority:1" json:"condominium_id"`
	ApartmentNumber string       `gorm:"not null;index:idx_residents_condominium,priority:2" json:"apartment_number"`
	Floor           *string      `json:"floor,omitempty"`
	FirstName       string       `gorm:"not null;default:''" json:"first_name"`
	LastName        string       `gorm:"not null;default:''" json:"last_name"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Resident) TableName() string { return "residents" }

func (r Resident) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}
