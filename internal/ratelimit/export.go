package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/condopay/internal/config"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	pkgredis "github.com/smallbiznis/condopay/pkg/redis"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyExportActor = "condopay:export:actor:%s"
	keyExportLock  = "condopay:export:lock:%s:%d:%s"
)

var (
	ErrRateLimited      = errors.New("rate_limited")
	ErrExportInProgress = errors.New("export_in_progress")
)

// ExportLimiter throttles report exports per actor and lets only one render
// of the same condominium, year and format run at a time. A nil limiter
// allows everything.
type ExportLimiter struct {
	log     *zap.Logger
	limiter *Limiter
	lock    keyLock
}

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *pkgredis.Client `optional:"true"`
}

func NewExportLimiter(p Params) (*ExportLimiter, error) {
	limitCfg := p.Cfg.ExportLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if p.Redis == nil {
		return nil, errors.New("export rate limit requires REDIS_URL")
	}
	if limitCfg.LockTTL <= 0 {
		return nil, errors.New("export lock ttl must be positive")
	}
	limiter, err := NewLimiter(p.Redis.Client, limitCfg.Rate, limitCfg.Burst)
	if err != nil {
		return nil, fmt.Errorf("export rate limit: %w", err)
	}

	return &ExportLimiter{
		log:     p.Log.Named("ratelimit.export"),
		limiter: limiter,
		lock:    keyLock{client: p.Redis.Client, ttl: limitCfg.LockTTL},
	}, nil
}

func (l *ExportLimiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Allow spends one of the actor's export slots. Redis failures let the
// export through.
func (l *ExportLimiter) Allow(ctx context.Context, actorID snowflake.ID) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}

	d, err := l.limiter.Allow(ctx, fmt.Sprintf(keyExportActor, actorID))
	if err != nil {
		obslogger.WithContext(ctx, l.log).Warn("export rate limit unavailable", zap.Error(err))
		return Decision{Allowed: true}, nil
	}
	if !d.Allowed {
		return d, ErrRateLimited
	}
	return d, nil
}

// Acquire returns the func releasing the render lock, or ErrExportInProgress.
func (l *ExportLimiter) Acquire(ctx context.Context, condominiumID snowflake.ID, year int, format string) (func(), error) {
	if !l.Enabled() {
		return func() {}, nil
	}

	key := fmt.Sprintf(keyExportLock, condominiumID, year, format)
	unlock, ok, err := l.lock.tryLock(ctx, key)
	if err != nil {
		obslogger.WithContext(ctx, l.log).Warn("export lock unavailable", zap.String("key", key), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrExportInProgress
	}

	return func() {
		// The request may already be cancelled; the unlock gets its own budget.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			l.log.Warn("release export lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
