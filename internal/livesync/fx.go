package livesync

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("livesync",
	fx.Provide(NewController),
	fx.Provide(NewRegistry),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, registry *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return registry.Close()
		},
	})
}
