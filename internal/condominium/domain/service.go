package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateCondominiumRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

type Service interface {
	Create(context.Context, CreateCondominiumRequest) (Condominium, error)
	GetByID(context.Context, snowflake.ID) (Condominium, error)
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidID       = errors.New("invalid_condominium")
	ErrDuplicateSlug   = errors.New("duplicate_slug")
	ErrNotFound        = errors.New("condominium_not_found")
)
