package organization

import (
	"github.com/classbill/classbill/internal/organization/repository"
	"github.com/classbill/classbill/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
