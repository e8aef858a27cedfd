package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type RegisterResidentRequest struct {
	ApartmentNumber string  `json:"apartment_number"`
	Floor           *string `json:"floor"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
}

type Service interface {
	Register(ctx context.Context, condominiumID snowflake.ID, req RegisterResidentRequest) (Resident, error)
	GetByID(ctx context.Context, id snowflake.ID) (Resident, error)
	List(ctx context.Context, condominiumID snowflake.ID) ([]Resident, error)
}

var (
	ErrInvalidCondominium = errors.New("invalid_condominium")
	ErrInvalidApartment   = errors.New("invalid_apartment_number")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidID          = errors.New("invalid_resident")
	ErrNotFound           = errors.New("resident_not_found")
)
