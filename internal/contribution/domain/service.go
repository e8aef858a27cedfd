package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// GetReport fetches residents and payments and aggregates them. When the
	// fetch fails the last known good snapshot is returned marked stale,
	// together with an error wrapping ErrFetchFailed.
	GetReport(ctx context.Context, condominiumID snowflake.ID, year int) (Snapshot, error)
	GetResidentOverview(ctx context.Context, residentID snowflake.ID, year int) (ResidentOverview, error)
}

var (
	ErrInvalidCondominium = errors.New("invalid_condominium")
	ErrInvalidResident    = errors.New("invalid_resident")
	ErrInvalidYear        = errors.New("invalid_year")
	ErrResidentNotFound   = errors.New("resident_not_found")
	ErrFetchFailed        = errors.New("fetch_failed")
	ErrNoSnapshot         = errors.New("snapshot_not_found")
)

const (
	MinYear = 2000
	MaxYear = 2100
)

func ValidYear(year int) bool {
	return year >= MinYear && year <= MaxYear
}
