package resident

import (
	"github.com/smallbiznis/condopay/internal/resident/repository"
	"github.com/smallbiznis/condopay/internal/resident/service"
	"go.uber.org/fx"
)

var Module = fx.Module("resident.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
