package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreatePaymentRequest struct {
	ResidentID     snowflake.ID    `json:"resident_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ReferenceMonth string          `json:"reference_month"`
	DueDate        *time.Time      `json:"due_date"`
	Description    string          `json:"description"`
}

type ApprovePaymentRequest struct {
	PaymentDate *time.Time `json:"payment_date"`
}

type Service interface {
	Create(ctx context.Context, condominiumID snowflake.ID, req CreatePaymentRequest) (Payment, error)
	Approve(ctx context.Context, id snowflake.ID, req ApprovePaymentRequest) (Payment, error)
	Cancel(ctx context.Context, id snowflake.ID) (Payment, error)
	GetByID(ctx context.Context, id snowflake.ID) (Payment, error)
}

var (
	ErrInvalidCondominium    = errors.New("invalid_condominium")
	ErrInvalidResident       = errors.New("invalid_resident")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidReferenceMonth = errors.New("invalid_reference_month")
	ErrInvalidID             = errors.New("invalid_payment")
	ErrNotFound              = errors.New("payment_not_found")
	ErrAlreadyPaid           = errors.New("payment_already_paid")
	ErrCancelled             = errors.New("payment_cancelled")
)
