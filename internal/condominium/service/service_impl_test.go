package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/condopay/internal/clock"
	"github.com/smallbiznis/condopay/internal/condominium/domain"
	"github.com/smallbiznis/condopay/internal/condominium/repository"
	"github.com/smallbiznis/condopay/internal/migration"
	"github.com/smallbiznis/condopay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	conn := db.NewTest(t)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestCreate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateCondominiumRequest{Name: "  Residencial São João ", Currency: "brl"})
	require.NoError(t, err)
	assert.Equal(t, "Residencial São João", created.Name)
	assert.Equal(t, "residencial-sao-joao", created.Slug)
	assert.Equal(t, "BRL", created.Currency)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Slug, got.Slug)
}

func TestCreateDefaultsCurrency(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(context.Background(), domain.CreateCondominiumRequest{Name: "Bela Vista"})
	require.NoError(t, err)
	assert.Equal(t, "BRL", created.Currency)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateCondominiumRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateCondominiumRequest{Name: "Aurora", Currency: "R$"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestCreateDuplicateSlug(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateCondominiumRequest{Name: "Jardim Europa"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateCondominiumRequest{Name: "jardim europa"})
	assert.ErrorIs(t, err, domain.ErrDuplicateSlug)
}

func TestGetByID(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetByID(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
