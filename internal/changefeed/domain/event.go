package domain

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

type Table string

const (
	TablePayments  Table = "payments"
	TableResidents Table = "residents"
)

func (t Table) Valid() bool {
	return t == TablePayments || t == TableResidents
}

type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

func ParseOperation(raw string) (Operation, bool) {
	switch Operation(strings.ToUpper(strings.TrimSpace(raw))) {
	case OpInsert:
		return OpInsert, true
	case OpUpdate:
		return OpUpdate, true
	case OpDelete:
		return OpDelete, true
	default:
		return "", false
	}
}

// Event announces that a row of a watched table changed. It carries no row
// data; consumers re-read the store.
type Event struct {
	ID            string       `json:"id"`
	Table         Table        `json:"table"`
	Op            Operation    `json:"op"`
	CondominiumID snowflake.ID `json:"condominium_id"`
	RowID         snowflake.ID `json:"row_id"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

func NewEvent(table Table, op Operation, condominiumID, rowID snowflake.ID, at time.Time) Event {
	return Event{
		ID:            ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		Table:         table,
		Op:            op,
		CondominiumID: condominiumID,
		RowID:         rowID,
		OccurredAt:    at.UTC(),
	}
}

// Filter scopes a subscription to one table of one condominium.
type Filter struct {
	Table         Table
	CondominiumID snowflake.ID
}

func (f Filter) Validate() error {
	if !f.Table.Valid() {
		return ErrInvalidTable
	}
	if f.CondominiumID == 0 {
		return ErrInvalidCondominium
	}
	return nil
}

func (f Filter) Key() string {
	return string(f.Table) + ":" + f.CondominiumID.String()
}

func (f Filter) Match(e Event) bool {
	return e.Table == f.Table && e.CondominiumID == f.CondominiumID
}

// Subscription delivers matching events until closed. Events is closed when
// the subscription ends, either through Close or a transport failure.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Feed interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

var (
	ErrInvalidTable       = errors.New("invalid_table")
	ErrInvalidCondominium = errors.New("invalid_condominium")
	ErrFeedUnavailable    = errors.New("feed_unavailable")
)
