package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Subscription, error)
	FindByOrgIDForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Subscription, error)

	// Scheduler selections. Each predicate matches only records still in the
	// job's pre-state so a partial batch can be re-run safely.
	FindExpiringBetween(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]Subscription, error)
	FindRenewalDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	FindGraceExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
}
