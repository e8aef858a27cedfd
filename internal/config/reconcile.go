package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/condopay/internal/contribution/monthkey"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReconcileConfig tunes the contribution reconciliation engine. It is hot reloaded.
type ReconcileConfig struct {
	Debounce       time.Duration `mapstructure:"debounce" validate:"gt=0"`
	OccupancyFloor int           `mapstructure:"occupancyFloor" validate:"gte=1"`
	SnapshotTTL    time.Duration `mapstructure:"snapshotTTL" validate:"gte=0"`
	MonthTokens    []MonthToken  `mapstructure:"monthTokens" validate:"required,min=1,dive"`
}

type MonthToken struct {
	Token string `mapstructure:"token" validate:"required"`
	Month int    `mapstructure:"month" validate:"min=1,max=12"`
}

func DefaultReconcileConfig() ReconcileConfig {
	table := monthkey.DefaultTable()
	tokens := make([]MonthToken, 0, len(table))
	for _, entry := range table {
		tokens = append(tokens, MonthToken{Token: entry.Token, Month: entry.Month})
	}
	return ReconcileConfig{
		Debounce:       50 * time.Millisecond,
		OccupancyFloor: 10,
		SnapshotTTL:    10 * time.Minute,
		MonthTokens:    tokens,
	}
}

// TokenTable converts the configured tokens into the resolver's table, preserving order.
func (c ReconcileConfig) TokenTable() monthkey.Table {
	table := make(monthkey.Table, 0, len(c.MonthTokens))
	for _, t := range c.MonthTokens {
		table = append(table, monthkey.Token{Token: t.Token, Month: t.Month})
	}
	return table
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig
}

// NewStaticReconcileConfigHolder returns a holder that never reloads.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReconcileConfigHolder(log *zap.Logger) (*ReconcileConfigHolder, error) {
	v := viper.New()
	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/condopay/config")
	v.AddConfigPath("/etc/condopay")
	v.AddConfigPath(".")

	return newReconcileConfigHolder(v, log, true)
}

func newReconcileConfigHolder(v *viper.Viper, log *zap.Logger, watch bool) (*ReconcileConfigHolder, error) {
	log = log.Named("config.reconcile")

	v.SetEnvPrefix("CONDOPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcileConfig()
	v.SetDefault("reconcile.debounce", defaults.Debounce)
	v.SetDefault("reconcile.occupancyFloor", defaults.OccupancyFloor)
	v.SetDefault("reconcile.snapshotTTL", defaults.SnapshotTTL)
	v.SetDefault("reconcile.monthTokens", defaults.MonthTokens)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeReconcileConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)

	if watch && fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeReconcileConfig(v)
			if err != nil {
				log.Warn("invalid reconcile config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("reconcile config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	return h.current.Load().(ReconcileConfig)
}

var configValidator = validator.New()

func decodeReconcileConfig(v *viper.Viper) (ReconcileConfig, error) {
	var cfg ReconcileConfig
	if err := v.UnmarshalKey("reconcile", &cfg); err != nil {
		return ReconcileConfig{}, err
	}
	if err := validateReconcileConfig(cfg); err != nil {
		return ReconcileConfig{}, err
	}
	return cfg, nil
}

func validateReconcileConfig(cfg ReconcileConfig) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("reconcile config: %w", err)
	}
	return nil
}
