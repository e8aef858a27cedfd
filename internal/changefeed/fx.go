package changefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/smallbiznis/condopay/internal/changefeed/hub"
	"github.com/smallbiznis/condopay/internal/changefeed/pgnotify"
	"github.com/smallbiznis/condopay/internal/changefeed/redisfeed"
	"github.com/smallbiznis/condopay/internal/config"
	pkgredis "github.com/smallbiznis/condopay/pkg/redis"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("changefeed",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc    fx.Lifecycle
	Cfg   config.Config
	Log   *zap.Logger
	Redis *pkgredis.Client `optional:"true"`
}

type Result struct {
	fx.Out

	Feed      domain.Feed
	Publisher domain.Publisher
}

// New selects the change feed transport from CHANGEFEED_DRIVER.
func New(p Params) (Result, error) {
	log := p.Log.Named("changefeed")

	switch p.Cfg.ChangeFeed.Driver {
	case config.ChangeFeedPostgres:
		listener := pgnotify.New(p.Cfg.DatabaseURL(), p.Log)
		p.Lc.Append(fx.Hook{
			OnStart: listener.Start,
			OnStop:  listener.Stop,
		})
		log.Info("using postgres change feed")
		// Database triggers announce every write, application publishes are redundant.
		return Result{Feed: listener, Publisher: noopPublisher{}}, nil
	case config.ChangeFeedRedis:
		if p.Redis == nil {
			return Result{}, errors.New("redis change feed requires REDIS_URL")
		}
		feed := redisfeed.New(p.Redis.Client, p.Cfg.ChangeFeed.ChannelPrefix, p.Log)
		log.Info("using redis change feed", zap.String("prefix", p.Cfg.ChangeFeed.ChannelPrefix))
		return Result{Feed: feed, Publisher: feed}, nil
	case config.ChangeFeedMemory, "":
		h := hub.New()
		log.Info("using in-process change feed")
		return Result{Feed: h, Publisher: h}, nil
	default:
		return Result{}, fmt.Errorf("unsupported change feed driver %q", p.Cfg.ChangeFeed.Driver)
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Event) error { return nil }
