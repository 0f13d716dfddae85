package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/classbill/classbill/internal/analytics"
	"github.com/classbill/classbill/internal/authorization"
	"github.com/classbill/classbill/internal/clock"
	"github.com/classbill/classbill/internal/config"
	"github.com/classbill/classbill/internal/logger"
	"github.com/classbill/classbill/internal/migration"
	"github.com/classbill/classbill/internal/notification"
	"github.com/classbill/classbill/internal/organization"
	"github.com/classbill/classbill/internal/payment"
	"github.com/classbill/classbill/internal/plan"
	"github.com/classbill/classbill/internal/promo"
	"github.com/classbill/classbill/internal/providers/email"
	"github.com/classbill/classbill/internal/scheduler"
	"github.com/classbill/classbill/internal/subscription"
	"github.com/classbill/classbill/internal/transaction"
	"github.com/classbill/classbill/internal/usage"
	"github.com/classbill/classbill/pkg/db"
)

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

// Standalone lifecycle worker. Runs the renewal, expiry warning, and grace
// expiry jobs on a timer without serving HTTP traffic.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		authorization.Module,
		plan.Module,
		organization.Module,
		subscription.Module,
		usage.Module,
		transaction.Module,
		promo.Module,
		payment.Module,
		analytics.Module,

		email.Module,
		notification.Module,
		scheduler.Module,
	)

	app.Run()
}
