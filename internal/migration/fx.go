package migration

import (
	"strings"

	"github.com/smallbiznis/condopay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates the schema before any other start hook runs.
var Module = fx.Module("migration",
	fx.Invoke(migrateOnStart),
)

func migrateOnStart(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")

	switch strings.ToLower(cfg.DBType) {
	case "postgres", "postgresql":
	default:
		log.Info("creating schema from models", zap.String("db_type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	res, err := Up(sqlDB)
	if err != nil {
		return err
	}
	log.Info("schema ready", zap.Uint("version", res.Version), zap.Bool("changed", res.Changed))
	return nil
}
