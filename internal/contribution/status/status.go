// Package status classifies stored payments into display states.
package status

import (
	"strings"
	"time"
)

type Status string

const (
	Paid    Status = "paid"
	Overdue Status = "overdue"
	// Pending is rendered and exported but Classify never returns it.
	Pending Status = "pending"
)

func (s Status) Valid() bool {
	switch s {
	case Paid, Overdue, Pending:
		return true
	default:
		return false
	}
}

// Classify is debt focused: anything not confirmed as settled is overdue,
// regardless of due date or an upstream pending status.
func Classify(stored string, paymentDate *time.Time) Status {
	if strings.EqualFold(strings.TrimSpace(stored), string(Paid)) && paymentDate != nil && !paymentDate.IsZero() {
		return Paid
	}
	return Overdue
}
