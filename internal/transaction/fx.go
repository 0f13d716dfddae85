package transaction

import (
	"github.com/classbill/classbill/internal/transaction/repository"
	"github.com/classbill/classbill/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
