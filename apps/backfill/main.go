package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classbill/classbill/internal/clock"
	"github.com/classbill/classbill/internal/config"
	"github.com/classbill/classbill/internal/logger"
	"github.com/classbill/classbill/internal/migration"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	"github.com/classbill/classbill/pkg/db"
)

// One-shot maintenance tool: recomputes each subscription's usage counters
// from the per-member rows and exits. Useful after manual data repairs, when
// the organization totals have drifted from the member attribution slices.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		clock.Module,
		migration.Module,

		fx.Invoke(runBackfill),
	)

	app.Run()
}

func runBackfill(lc fx.Lifecycle, sh fx.Shutdowner, conn *gorm.DB, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := backfillCounters(ctx, conn, log); err != nil {
				log.Error("backfill failed", zap.Error(err))
			}
			return sh.Shutdown()
		},
	})
}

type memberTotals struct {
	OrgID    int64
	Subjects int
	Students int
}

func backfillCounters(ctx context.Context, conn *gorm.DB, log *zap.Logger) error {
	var totals []memberTotals
	err := conn.WithContext(ctx).
		Model(&organizationdomain.Member{}).
		Select("org_id, COALESCE(SUM(current_subjects), 0) as subjects, COALESCE(SUM(current_students), 0) as students").
		Group("org_id").
		Scan(&totals).Error
	if err != nil {
		return err
	}

	byOrg := make(map[int64]memberTotals, len(totals))
	for _, t := range totals {
		byOrg[t.OrgID] = t
	}

	var updated int
	err = conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subs []subscriptiondomain.Subscription
		if err := tx.Find(&subs).Error; err != nil {
			return err
		}
		for i := range subs {
			sub := &subs[i]
			t := byOrg[int64(sub.OrgID)]
			if sub.CurrentSubjects == t.Subjects && sub.CurrentStudents == t.Students {
				continue
			}
			log.Info("counter drift",
				zap.String("org_id", sub.OrgID.String()),
				zap.Int("stored_subjects", sub.CurrentSubjects),
				zap.Int("actual_subjects", t.Subjects),
				zap.Int("stored_students", sub.CurrentStudents),
				zap.Int("actual_students", t.Students),
			)
			res := tx.Model(&subscriptiondomain.Subscription{}).
				Where("id = ?", sub.ID).
				Updates(map[string]any{
					"current_subjects": t.Subjects,
					"current_students": t.Students,
				})
			if res.Error != nil {
				return res.Error
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("backfill complete", zap.Int("updated", updated))
	return nil
}
