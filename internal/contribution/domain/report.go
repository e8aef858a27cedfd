package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/condopay/internal/contribution/status"
)

// Cell is one occupied month slot of a resident row.
type Cell struct {
	Status    status.Status   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PaymentID snowflake.ID    `json:"payment_id"`
}

// Row holds twelve month keys (YYYY-MM) for the report year; absent months map to nil.
type Row struct {
	ResidentID      snowflake.ID     `json:"resident_id"`
	ApartmentNumber string           `json:"apartment_number"`
	Floor           *string          `json:"floor,omitempty"`
	ResidentName    string           `json:"resident_name"`
	Months          map[string]*Cell `json:"months"`
	TotalPaid       decimal.Decimal  `json:"total_paid"`
	TotalDebt       decimal.Decimal  `json:"total_debt"`
}

type Summary struct {
	TotalPaid       decimal.Decimal `json:"total_paid"`
	TotalDebt       decimal.Decimal `json:"total_debt"`
	TotalApartments int             `json:"total_apartments"`
	OccupancyRate   float64         `json:"occupancy_rate"`
}

type AnomalyKind string

const (
	// AnomalyMonthCorrected marks a description that overrode the reference month.
	AnomalyMonthCorrected AnomalyKind = "month_corrected"
	// AnomalySlotOverwritten marks a payment replaced by a later one in the same slot.
	AnomalySlotOverwritten AnomalyKind = "slot_overwritten"
)

type Anomaly struct {
	Kind           AnomalyKind  `json:"kind"`
	PaymentID      snowflake.ID `json:"payment_id"`
	ResidentID     snowflake.ID `json:"resident_id"`
	ReferenceMonth string       `json:"reference_month"`
	MonthKey       string       `json:"month_key"`
	Token          string       `json:"token,omitempty"`
	ReplacedBy     snowflake.ID `json:"replaced_by,omitempty"`
}

const (
	DropReasonMalformedReferenceMonth = "malformed_reference_month"
	DropReasonUnknownResident         = "unknown_resident"
)

type DroppedPayment struct {
	PaymentID      snowflake.ID `json:"payment_id"`
	ResidentID     snowflake.ID `json:"resident_id"`
	ReferenceMonth string       `json:"reference_month"`
	Reason         string       `json:"reason"`
}

type Report struct {
	CondominiumID snowflake.ID     `json:"condominium_id"`
	Year          int              `json:"year"`
	Summary       Summary          `json:"summary"`
	Rows          []Row            `json:"rows"`
	Anomalies     []Anomaly        `json:"anomalies"`
	Dropped       []DroppedPayment `json:"dropped"`
}

// Snapshot is a computed report plus freshness information.
type Snapshot struct {
	Report
	Generation  uint64    `json:"generation"`
	GeneratedAt time.Time `json:"generated_at"`
	Stale       bool      `json:"stale"`
}

// ResidentOverview is the resident dashboard view of one year.
type ResidentOverview struct {
	ResidentID      snowflake.ID    `json:"resident_id"`
	CondominiumID   snowflake.ID    `json:"condominium_id"`
	Year            int             `json:"year"`
	Row             Row             `json:"row"`
	PaidMonths      int             `json:"paid_months"`
	OverdueMonths   int             `json:"overdue_months"`
	PendingMonths   int             `json:"pending_months"`
	AbsentMonths    int             `json:"absent_months"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	TotalDebt       decimal.Decimal `json:"total_debt"`
	LastPaymentDate *time.Time      `json:"last_payment_date,omitempty"`
}
