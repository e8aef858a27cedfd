package condominium

import (
	"github.com/smallbiznis/condopay/internal/condominium/repository"
	"github.com/smallbiznis/condopay/internal/condominium/service"
	"go.uber.org/fx"
)

var Module = fx.Module("condominium.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
