package promo

import (
	"github.com/classbill/classbill/internal/promo/repository"
	"github.com/classbill/classbill/internal/promo/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promo.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
