package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *LifecycleEvent) error
	FindEventsByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]LifecycleEvent, error)
	CountEventsByType(ctx context.Context, db *gorm.DB) (map[EventType]int64, error)
	RevenueByTier(ctx context.Context, db *gorm.DB) ([]RevenueLine, error)
	SubscriptionCounts(ctx context.Context, db *gorm.DB) ([]TierCount, error)
}
