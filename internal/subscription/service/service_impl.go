package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/classbill/classbill/internal/authorization"
	"github.com/classbill/classbill/internal/clock"
	"github.com/classbill/classbill/internal/orgcontext"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	catalog plandomain.Catalog
	authz   authorization.Service
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Catalog plandomain.Catalog
	Authz   authorization.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		authz:   p.Authz,
	}
}

// CreateForOrg implements domain.Service.
func (s *Service) CreateForOrg(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if orgID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOrganization
	}

	existing, err := s.repo.FindByOrgID(ctx, s.db, orgID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if existing != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionExists
	}

	freePlan, err := s.catalog.Resolve(plandomain.TierFree)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	now := s.clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		PlanTier:     plandomain.TierFree,
		Status:       subscriptiondomain.StatusActive,
		SubjectLimit: freePlan.SubjectLimit.Resolve(),
		StudentLimit: freePlan.StudentLimit.Resolve(),
		Currency:     "NGN",
		StartDate:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &sub); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.String("org_id", orgID.String()),
		zap.String("tier", string(sub.PlanTier)),
	)
	return sub, nil
}

// GetByOrgID implements domain.Service.
func (s *Service) GetByOrgID(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if orgID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOrganization
	}
	sub, err := s.repo.FindByOrgID(ctx, s.db, orgID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

// ApplyPaidPlan implements domain.Service. It must only be called after the
// payment has been verified and reconciled against the ledger.
func (s *Service) ApplyPaidPlan(ctx context.Context, req subscriptiondomain.ApplyPaidPlanRequest) (subscriptiondomain.Subscription, error) {
	if req.OrgID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOrganization
	}
	targetPlan, err := s.catalog.Resolve(req.Tier)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if !req.Tier.IsPaid() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTransition
	}

	return s.transition(ctx, req.OrgID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		sub.PlanTier = req.Tier
		sub.Status = subscriptiondomain.StatusActive
		sub.SubjectLimit = targetPlan.SubjectLimit.Resolve()
		sub.StudentLimit = targetPlan.StudentLimit.Resolve()
		sub.Amount = req.Amount
		sub.Currency = req.Currency
		sub.StartDate = now
		expiry := now.AddDate(0, 1, 0)
		sub.ExpiryDate = &expiry
		sub.GracePeriodEnd = nil
		sub.CancelledAt = nil
		sub.LastPaymentDate = &now
		if req.ExternalCustomerRef != nil {
			sub.ExternalCustomerRef = req.ExternalCustomerRef
		}
		if req.ExternalSubscriptionRef != nil {
			sub.ExternalSubscriptionRef = req.ExternalSubscriptionRef
		}
		return nil
	})
}

// Cancel implements domain.Service.
func (s *Service) Cancel(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, orgID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		if sub.Status != subscriptiondomain.StatusActive || !sub.PlanTier.IsPaid() {
			return subscriptiondomain.ErrInvalidTransition
		}
		graceEnd := now.Add(subscriptiondomain.GracePeriod)
		sub.Status = subscriptiondomain.StatusGracePeriod
		sub.GracePeriodEnd = &graceEnd
		sub.CancelledAt = &now
		return nil
	})
}

// RenewalSucceeded implements domain.Service. The new expiry is anchored on
// the previous expiry date, not on the processing time, so a late batch run
// does not shorten the period the organization paid for.
func (s *Service) RenewalSucceeded(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, orgID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		if sub.Status != subscriptiondomain.StatusActive || !sub.PlanTier.IsPaid() || sub.ExpiryDate == nil {
			return subscriptiondomain.ErrInvalidTransition
		}
		next := sub.ExpiryDate.AddDate(0, 1, 0)
		sub.ExpiryDate = &next
		sub.LastPaymentDate = &now
		return nil
	})
}

// RenewalFailed implements domain.Service.
func (s *Service) RenewalFailed(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, orgID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		if sub.Status != subscriptiondomain.StatusActive || !sub.PlanTier.IsPaid() {
			return subscriptiondomain.ErrInvalidTransition
		}
		graceEnd := now.Add(subscriptiondomain.GracePeriod)
		sub.Status = subscriptiondomain.StatusGracePeriod
		sub.GracePeriodEnd = &graceEnd
		return nil
	})
}

// ExpireGracePeriod implements domain.Service.
func (s *Service) ExpireGracePeriod(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, orgID, s.downgradeToFree)
}

// ManualDowngrade implements domain.Service.
func (s *Service) ManualDowngrade(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	actor, ok := orgcontext.ActorFromContext(ctx)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrPermissionDenied
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectSubscription, authorization.ActionSubscriptionDowngrade); err != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrPermissionDenied
	}

	sub, err := s.transition(ctx, orgID, s.downgradeToFree)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	s.log.Info("manual downgrade applied",
		zap.String("org_id", orgID.String()),
		zap.String("actor", actor.MemberID.String()),
	)
	return sub, nil
}

// downgradeToFree applies the grace_period -> free transition. Usage counters
// are preserved even when they exceed the free-tier limits: nothing is
// deleted, new registrations are blocked by the limit check instead.
func (s *Service) downgradeToFree(sub *subscriptiondomain.Subscription, now time.Time) error {
	if sub.Status != subscriptiondomain.StatusGracePeriod {
		return subscriptiondomain.ErrInvalidTransition
	}
	freePlan, err := s.catalog.Resolve(plandomain.TierFree)
	if err != nil {
		return err
	}

	sub.PlanTier = plandomain.TierFree
	sub.Status = subscriptiondomain.StatusActive
	sub.SubjectLimit = freePlan.SubjectLimit.Resolve()
	sub.StudentLimit = freePlan.StudentLimit.Resolve()
	sub.Amount = 0
	sub.ExpiryDate = nil
	sub.GracePeriodEnd = nil
	sub.LastPaymentDate = nil
	sub.ExternalCustomerRef = nil
	sub.ExternalSubscriptionRef = nil
	return nil
}

// transition loads the record under a row lock, applies fn and saves the
// result inside one database transaction.
func (s *Service) transition(ctx context.Context, orgID snowflake.ID, fn func(*subscriptiondomain.Subscription, time.Time) error) (subscriptiondomain.Subscription, error) {
	if orgID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOrganization
	}

	var out subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByOrgIDForUpdate(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		now := s.clock.Now()
		if err := fn(sub, now); err != nil {
			return err
		}
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		out = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return out, nil
}
