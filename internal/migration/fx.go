package migration

import (
	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	"github.com/classbill/classbill/internal/config"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	promodomain "github.com/classbill/classbill/internal/promo/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// golang-migrate is wired for postgres; other dialects are for
			// local development and lean on gorm's schema sync.
			return conn.AutoMigrate(
				&organizationdomain.Organization{},
				&organizationdomain.Member{},
				&subscriptiondomain.Subscription{},
				&transactiondomain.Transaction{},
				&promodomain.PromoCode{},
				&analyticsdomain.LifecycleEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
