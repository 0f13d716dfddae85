package analytics

import (
	"github.com/classbill/classbill/internal/analytics/repository"
	"github.com/classbill/classbill/internal/analytics/service"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
