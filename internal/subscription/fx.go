package subscription

import (
	"github.com/classbill/classbill/internal/subscription/repository"
	"github.com/classbill/classbill/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
