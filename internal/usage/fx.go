package usage

import (
	"github.com/classbill/classbill/internal/usage/liveevents"
	"github.com/classbill/classbill/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(liveevents.NewHub),
	fx.Provide(service.NewService),
)
