package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/condopay/internal/config"
	pkgredis "github.com/smallbiznis/condopay/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewExportLimiterDisabled(t *testing.T) {
	limiter, err := NewExportLimiter(Params{Cfg: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())
}

func TestNewExportLimiterRequiresRedis(t *testing.T) {
	cfg := config.Config{ExportLimit: config.ExportLimitConfig{Enabled: true, Rate: 1, Burst: 1, LockTTL: time.Second}}
	_, err := NewExportLimiter(Params{Cfg: cfg, Log: zap.NewNop()})
	assert.Error(t, err)
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var limiter *ExportLimiter
	ctx := context.Background()

	res, err := limiter.Allow(ctx, 42)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	release, err := limiter.Acquire(ctx, 1, 2024, "csv")
	require.NoError(t, err)
	release()
}

func TestEmissionInterval(t *testing.T) {
	assert.Equal(t, 5*time.Second, emissionInterval(0.2))
	assert.Equal(t, 250*time.Millisecond, emissionInterval(4))
	assert.Equal(t, time.Millisecond, emissionInterval(1e6))
}

func TestNewLimiterValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewLimiter(nil, 1, 1)
	assert.Error(t, err)
	_, err = NewLimiter(client, 0, 1)
	assert.Error(t, err)
	_, err = NewLimiter(client, 1, 0)
	assert.Error(t, err)

	l, err := NewLimiter(client, 0.5, 3)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, l.emission)

	_, err = l.Allow(context.Background(), "")
	assert.EqualError(t, err, "rate limiter key is empty")
}

func TestExportLimiterRejectsBadConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	rc := &pkgredis.Client{Client: client}

	_, err := NewExportLimiter(Params{
		Cfg:   config.Config{ExportLimit: config.ExportLimitConfig{Enabled: true, Rate: 1, Burst: 0, LockTTL: time.Second}},
		Log:   zap.NewNop(),
		Redis: rc,
	})
	assert.Error(t, err)

	_, err = NewExportLimiter(Params{
		Cfg:   config.Config{ExportLimit: config.ExportLimitConfig{Enabled: true, Rate: 1, Burst: 1}},
		Log:   zap.NewNop(),
		Redis: rc,
	})
	assert.EqualError(t, err, "export lock ttl must be positive")
}

func TestExportLimiterFailsOpenWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewExportLimiter(Params{
		Cfg:   config.Config{ExportLimit: config.ExportLimitConfig{Enabled: true, Rate: 1, Burst: 1, LockTTL: time.Second}},
		Log:   zap.NewNop(),
		Redis: &pkgredis.Client{Client: client},
	})
	require.NoError(t, err)
	require.True(t, limiter.Enabled())

	ctx := context.Background()
	d, err := limiter.Allow(ctx, 42)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	release, err := limiter.Acquire(ctx, 1, 2024, "xlsx")
	require.NoError(t, err)
	release()
}
