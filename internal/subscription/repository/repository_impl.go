package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Save(subscription).Error
}

func (r *repo) FindByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindByOrgIDForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	query := db.WithContext(ctx)
	// sqlite has no row locks; the in-memory test database runs unlocked.
	if db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var sub subscriptiondomain.Subscription
	err := query.Where("org_id = ?", orgID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindExpiringBetween(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.StatusActive).
		Where("plan_tier <> ?", plandomain.TierFree).
		Where("expiry_date > ? AND expiry_date <= ?", from, to).
		Order("expiry_date asc").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *repo) FindRenewalDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.StatusActive).
		Where("plan_tier <> ?", plandomain.TierFree).
		Where("expiry_date IS NOT NULL AND expiry_date <= ?", now).
		Order("expiry_date asc").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *repo) FindGraceExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.StatusGracePeriod).
		Where("grace_period_end IS NOT NULL AND grace_period_end <= ?", now).
		Order("grace_period_end asc").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}
