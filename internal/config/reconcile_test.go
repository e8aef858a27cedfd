package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)
	return v
}

func TestReconcileConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := newReconcileConfigHolder(newTestViper(t.TempDir()), zap.NewNop(), false)
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 10, cfg.OccupancyFloor)
	assert.Len(t, cfg.MonthTokens, 24)
	assert.Equal(t, "janeiro", cfg.MonthTokens[0].Token)
	assert.Equal(t, 12, cfg.MonthTokens[23].Month)
}

func TestReconcileConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`reconcile:
  debounce: 120ms
  occupancyFloor: 24
  snapshotTTL: 1m
  monthTokens:
    - token: julho
      month: 7
    - token: july
      month: 7
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconcile.yml"), content, 0o600))

	holder, err := newReconcileConfigHolder(newTestViper(dir), zap.NewNop(), false)
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 120*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 24, cfg.OccupancyFloor)
	assert.Equal(t, time.Minute, cfg.SnapshotTTL)
	require.Len(t, cfg.TokenTable(), 2)
	assert.Equal(t, "july", cfg.TokenTable()[1].Token)
}

func TestReconcileConfigRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`reconcile:
  occupancyFloor: 0
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconcile.yml"), content, 0o600))

	_, err := newReconcileConfigHolder(newTestViper(dir), zap.NewNop(), false)
	require.Error(t, err)
}

func TestLoadReadsChangeFeedDriver(t *testing.T) {
	t.Setenv("CHANGEFEED_DRIVER", "PostgreSQL")
	t.Setenv("DATABASE_PORT", "6543")

	cfg := Load()
	assert.Equal(t, ChangeFeedPostgres, cfg.ChangeFeed.Driver)
	assert.Equal(t, "6543", cfg.DBPort)
	assert.Contains(t, cfg.DatabaseURL(), ":6543/")
}
