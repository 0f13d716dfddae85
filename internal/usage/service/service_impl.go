package service

import (
	"context"
	"errors"
	"math"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	usagedomain "github.com/classbill/classbill/internal/usage/domain"
	"github.com/classbill/classbill/internal/usage/liveevents"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const nearLimitThreshold = 80

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	subscriptionRepo subscriptiondomain.Repository
	liveEvents       *liveevents.Hub
}

type ServiceParam struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	SubscriptionRepo subscriptiondomain.Repository
	LiveEvents       *liveevents.Hub `optional:"true"`
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		subscriptionRepo: p.SubscriptionRepo,
		liveEvents:       p.LiveEvents,
	}
}

// CheckLimit implements domain.Service.
func (s *Service) CheckLimit(ctx context.Context, orgID snowflake.ID, resource subscriptiondomain.ResourceKind) (bool, error) {
	sub, err := s.subscription(ctx, orgID)
	if err != nil {
		return false, err
	}
	if sub.Status == subscriptiondomain.StatusGracePeriod {
		return false, nil
	}
	return sub.Current(resource) < sub.Limit(resource), nil
}

// Increment implements domain.Service. Both counters move in one database
// transaction so a crash cannot leave the pair out of sync.
func (s *Service) Increment(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind) error {
	if err := s.applyDelta(ctx, orgID, memberID, resource, +1); err != nil {
		return err
	}
	s.publishUsage(ctx, orgID, memberID, resource)
	return nil
}

// Decrement implements domain.Service.
func (s *Service) Decrement(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind) error {
	if err := s.applyDelta(ctx, orgID, memberID, resource, -1); err != nil {
		return err
	}
	s.publishUsage(ctx, orgID, memberID, resource)
	return nil
}

// Register implements domain.Service: the documented check-then-act pair.
func (s *Service) Register(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind) (usagedomain.Stats, error) {
	ok, err := s.CheckLimit(ctx, orgID, resource)
	if err != nil {
		return usagedomain.Stats{}, err
	}
	if !ok {
		stats, statsErr := s.Stats(ctx, orgID, resource)
		if statsErr == nil {
			s.publish(liveevents.TypeLimitReached, orgID, memberID, stats)
		}
		return stats, usagedomain.ErrLimitReached
	}

	if err := s.Increment(ctx, orgID, memberID, resource); err != nil {
		return usagedomain.Stats{}, err
	}
	return s.Stats(ctx, orgID, resource)
}

// IsNearLimit implements domain.Service.
func (s *Service) IsNearLimit(ctx context.Context, orgID snowflake.ID, resource subscriptiondomain.ResourceKind) (bool, error) {
	stats, err := s.Stats(ctx, orgID, resource)
	if err != nil {
		return false, err
	}
	return stats.NearLimit, nil
}

// Stats implements domain.Service.
func (s *Service) Stats(ctx context.Context, orgID snowflake.ID, resource subscriptiondomain.ResourceKind) (usagedomain.Stats, error) {
	sub, err := s.subscription(ctx, orgID)
	if err != nil {
		return usagedomain.Stats{}, err
	}
	return statsFor(sub, resource), nil
}

func statsFor(sub *subscriptiondomain.Subscription, resource subscriptiondomain.ResourceKind) usagedomain.Stats {
	current := sub.Current(resource)
	limit := sub.Limit(resource)

	rawPercent := 0
	if limit > 0 {
		rawPercent = int(math.Round(float64(current) / float64(limit) * 100))
	}
	percent := rawPercent
	if percent > 100 {
		percent = 100
	}

	return usagedomain.Stats{
		Resource:  resource,
		Current:   current,
		Limit:     limit,
		Percent:   percent,
		NearLimit: rawPercent >= nearLimitThreshold,
	}
}

func (s *Service) subscription(ctx context.Context, orgID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if orgID == 0 {
		return nil, usagedomain.ErrInvalidOrganization
	}
	sub, err := s.subscriptionRepo.FindByOrgID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) applyDelta(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind, delta int) error {
	if orgID == 0 {
		return usagedomain.ErrInvalidOrganization
	}
	column, err := counterColumn(resource)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		memberQuery := tx.Model(&organizationdomain.Member{}).
			Where("org_id = ? AND id = ?", orgID, memberID)
		if delta < 0 {
			// Guarded update, same idiom as promo code consumption: the
			// counter never goes below zero.
			memberQuery = memberQuery.Where(column + " > 0")
		}
		result := memberQuery.UpdateColumn(column, gorm.Expr(column+" + ?", delta))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var members int64
			if err := tx.Model(&organizationdomain.Member{}).
				Where("org_id = ? AND id = ?", orgID, memberID).
				Count(&members).Error; err != nil {
				return err
			}
			if members == 0 {
				return usagedomain.ErrUserNotInOrganization
			}
			return usagedomain.ErrUsageUnderflow
		}

		orgQuery := tx.Model(&subscriptiondomain.Subscription{}).
			Where("org_id = ?", orgID)
		if delta < 0 {
			orgQuery = orgQuery.Where(column + " > 0")
		}
		result = orgQuery.UpdateColumn(column, gorm.Expr(column+" + ?", delta))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if delta < 0 {
				// Rolls back the member decrement so the pair stays in step.
				return usagedomain.ErrUsageUnderflow
			}
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil
	})
}

func counterColumn(resource subscriptiondomain.ResourceKind) (string, error) {
	switch resource {
	case subscriptiondomain.ResourceSubject:
		return "current_subjects", nil
	case subscriptiondomain.ResourceStudent:
		return "current_students", nil
	default:
		return "", usagedomain.ErrInvalidResource
	}
}

func (s *Service) publishUsage(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind) {
	if s.liveEvents == nil {
		return
	}
	stats, err := s.Stats(ctx, orgID, resource)
	if err != nil {
		if !errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			s.log.Warn("usage snapshot unavailable", zap.Error(err))
		}
		return
	}
	s.publish(liveevents.TypeUsageChanged, orgID, memberID, stats)
	if stats.NearLimit {
		s.publish(liveevents.TypeNearLimit, orgID, memberID, stats)
	}
}

func (s *Service) publish(eventType string, orgID, memberID snowflake.ID, stats usagedomain.Stats) {
	if s.liveEvents == nil {
		return
	}
	s.liveEvents.Publish(orgID.String(), liveevents.Event{
		Type:     eventType,
		OrgID:    orgID.String(),
		MemberID: memberID.String(),
		Resource: string(stats.Resource),
		Current:  stats.Current,
		Limit:    stats.Limit,
		Percent:  stats.Percent,
	})
}
