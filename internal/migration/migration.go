// Package migration owns the schema. Postgres gets the versioned SQL files,
// which also install the NOTIFY triggers behind the postgres change feed.
// mysql and sqlite are built from the gorm models.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	condominiumdomain "github.com/smallbiznis/condopay/internal/condominium/domain"
	paymentdomain "github.com/smallbiznis/condopay/internal/payment/domain"
	residentdomain "github.com/smallbiznis/condopay/internal/resident/domain"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var sqlFiles embed.FS

// Result is the schema state after Up.
type Result struct {
	Version uint
	Changed bool
}

// Up applies pending postgres migrations. The *sql.DB is shared with gorm
// and stays open.
func Up(db *sql.DB) (Result, error) {
	if db == nil {
		return Result{}, errors.New("migration needs a database handle")
	}
	m, err := newMigrator(db)
	if err != nil {
		return Result{}, err
	}

	before, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Result{}, fmt.Errorf("read schema version: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Result{}, fmt.Errorf("apply migrations: %w", err)
	}

	after, dirty, err := m.Version()
	if err != nil {
		return Result{}, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return Result{}, fmt.Errorf("schema version %d is dirty", after)
	}
	return Result{Version: after, Changed: after != before}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(sqlFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "condopay_schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}

// AutoMigrate creates the tables from the models. Used for mysql, sqlite
// and tests; it installs no triggers.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&condominiumdomain.Condominium{},
		&residentdomain.Resident{},
		&paymentdomain.Payment{},
	)
}
