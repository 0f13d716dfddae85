package payment

import (
	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	"github.com/classbill/classbill/internal/payment/gateway"
	"github.com/classbill/classbill/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		gateway.NewClient,
		func(c *gateway.Client) paymentdomain.Gateway { return c },
	),
	fx.Provide(service.NewService),
)
