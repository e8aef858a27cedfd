package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	changefeed "github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/smallbiznis/condopay/internal/changefeed/hub"
	"github.com/smallbiznis/condopay/internal/clock"
	condominiumdomain "github.com/smallbiznis/condopay/internal/condominium/domain"
	condominiumrepo "github.com/smallbiznis/condopay/internal/condominium/repository"
	"github.com/smallbiznis/condopay/internal/migration"
	"github.com/smallbiznis/condopay/internal/resident/domain"
	"github.com/smallbiznis/condopay/internal/resident/repository"
	"github.com/smallbiznis/condopay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type fixture struct {
	svc   domain.Service
	hub   *hub.Hub
	condo snowflake.ID
}

func setupFixture(t *testing.T) fixture {
	t.Helper()

	conn := db.NewTest(t)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	condo := condominiumdomain.Condominium{
		ID: node.Generate(), Name: "Residencial Aurora", Slug: "residencial-aurora",
		Currency: "BRL", Metadata: datatypes.JSONMap{}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&condo).Error)

	h := hub.New()
	svc := New(Params{
		DB:              conn,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           clock.NewFakeClock(now),
		Repo:            repository.Provide(),
		CondominiumRepo: condominiumrepo.Provide(),
		Publisher:       h,
	})
	return fixture{svc: svc, hub: h, condo: condo.ID}
}

func TestRegister(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	sub, err := f.hub.Subscribe(ctx, changefeed.Filter{Table: changefeed.TableResidents, CondominiumID: f.condo})
	require.NoError(t, err)
	defer sub.Close()

	floor := " 1 "
	r, err := f.svc.Register(ctx, f.condo, domain.RegisterResidentRequest{
		ApartmentNumber: " 101 ",
		Floor:           &floor,
		FirstName:       "Ana",
		LastName:        "Souza",
	})
	require.NoError(t, err)
	assert.Equal(t, "101", r.ApartmentNumber)
	require.NotNil(t, r.Floor)
	assert.Equal(t, "1", *r.Floor)

	got, err := f.svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, f.condo, got.CondominiumID)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, r.ID, ev.RowID)
		assert.Equal(t, changefeed.OpInsert, ev.Op)
	case <-time.After(time.Second):
		t.Fatal("resident insert was not published")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, 0, domain.RegisterResidentRequest{ApartmentNumber: "1", FirstName: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidCondominium)

	_, err = f.svc.Register(ctx, f.condo, domain.RegisterResidentRequest{FirstName: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidApartment)

	_, err = f.svc.Register(ctx, f.condo, domain.RegisterResidentRequest{ApartmentNumber: "1"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Register(ctx, 999, domain.RegisterResidentRequest{ApartmentNumber: "1", FirstName: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidCondominium)
}

func TestListOrdersByApartment(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	for _, apt := range []string{"302", "101", "201"} {
		_, err := f.svc.Register(ctx, f.condo, domain.RegisterResidentRequest{ApartmentNumber: apt, FirstName: "Morador"})
		require.NoError(t, err)
	}

	items, err := f.svc.List(ctx, f.condo)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"101", "201", "302"}, []string{items[0].ApartmentNumber, items[1].ApartmentNumber, items[2].ApartmentNumber})

	_, err = f.svc.List(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCondominium)
}

func TestGetByIDNotFound(t *testing.T) {
	f := setupFixture(t)

	_, err := f.svc.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
