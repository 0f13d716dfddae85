package plan

import (
	"github.com/classbill/classbill/internal/plan/catalog"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.catalog",
	fx.Provide(
		catalog.NewHolder,
		func(h *catalog.Holder) plandomain.Catalog { return h },
	),
)
