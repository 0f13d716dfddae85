package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() analyticsdomain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *analyticsdomain.LifecycleEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) FindEventsByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]analyticsdomain.LifecycleEvent, error) {
	var events []analyticsdomain.LifecycleEvent
	q := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("occurred_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

func (r *repo) CountEventsByType(ctx context.Context, db *gorm.DB) (map[analyticsdomain.EventType]int64, error) {
	var rows []struct {
		EventType analyticsdomain.EventType
		Count     int64
	}
	err := db.WithContext(ctx).
		Model(&analyticsdomain.LifecycleEvent{}).
		Select("event_type, COUNT(*) as count").
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[analyticsdomain.EventType]int64, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}
	return counts, nil
}

func (r *repo) RevenueByTier(ctx context.Context, db *gorm.DB) ([]analyticsdomain.RevenueLine, error) {
	var lines []analyticsdomain.RevenueLine
	err := db.WithContext(ctx).
		Table("transactions").
		Select("plan_tier, currency, SUM(amount) as total, COUNT(*) as count").
		Where("status = ?", "success").
		Group("plan_tier").
		Group("currency").
		Order("plan_tier").
		Scan(&lines).Error
	return lines, err
}

func (r *repo) SubscriptionCounts(ctx context.Context, db *gorm.DB) ([]analyticsdomain.TierCount, error) {
	var counts []analyticsdomain.TierCount
	err := db.WithContext(ctx).
		Table("subscriptions").
		Select("plan_tier, status, COUNT(*) as count").
		Group("plan_tier").
		Group("status").
		Order("plan_tier").
		Scan(&counts).Error
	return counts, err
}
