package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Stored payment statuses. Approval flows move a payment to StatusPaid;
// reconciliation only distinguishes paid from everything else.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

type Payment struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	ResidentID     snowflake.ID    `gorm:"not null;index" json:"resident_id"`
	CondominiumID  snowflake.ID    `gorm:"not null;index:idx_payments_condominium_month,priority:1" json:"condominium_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency       string          `gorm:"not null;default:'BRL'" json:"currency"`
	ReferenceMonth string          `gorm:"not null;index:idx_payments_condominium_month,priority:2" json:"reference_month"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	PaymentDate    *time.Time      `json:"payment_date,omitempty"`
	Status         string          `gorm:"not null;default:'pending'" json:"status"`
	Description    string          `gorm:"not null;default:''" json:"description"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
