package contribution

import (
	"github.com/smallbiznis/condopay/internal/config"
	"github.com/smallbiznis/condopay/internal/contribution/service"
	"github.com/smallbiznis/condopay/internal/contribution/snapshot"
	pkgredis "github.com/smallbiznis/condopay/pkg/redis"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("contribution.service",
	fx.Provide(provideSnapshotStore),
	fx.Provide(service.NewService),
)

type storeParams struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *pkgredis.Client `optional:"true"`
}

// Snapshots live in redis when configured so every replica can serve the
// last known good report.
func provideSnapshotStore(p storeParams) snapshot.Store {
	if p.Redis != nil {
		p.Log.Named("contribution.snapshot").Info("using redis snapshot store")
		return snapshot.NewRedisStore(p.Redis.Client, p.Cfg.ChangeFeed.ChannelPrefix)
	}
	return snapshot.NewMemoryStore()
}
