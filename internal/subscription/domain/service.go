package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
)

// ApplyPaidPlanRequest carries a verified upgrade. The caller is responsible
// for having verified the payment before calling; the service never talks to
// the gateway.
type ApplyPaidPlanRequest struct {
	OrgID                   snowflake.ID
	Tier                    plandomain.Tier
	Amount                  int64
	Currency                string
	ExternalCustomerRef     *string
	ExternalSubscriptionRef *string
}

type Service interface {
	// CreateForOrg seeds the free-tier record when an organization is created.
	CreateForOrg(ctx context.Context, orgID snowflake.ID) (Subscription, error)
	GetByOrgID(ctx context.Context, orgID snowflake.ID) (Subscription, error)

	// ApplyPaidPlan applies the verified-upgrade transition.
	ApplyPaidPlan(ctx context.Context, req ApplyPaidPlanRequest) (Subscription, error)
	// Cancel moves an active paid subscription into its grace period. The
	// expiry date is left untouched.
	Cancel(ctx context.Context, orgID snowflake.ID) (Subscription, error)
	// RenewalSucceeded extends the expiry date by one month.
	RenewalSucceeded(ctx context.Context, orgID snowflake.ID) (Subscription, error)
	// RenewalFailed moves an active paid subscription into its grace period.
	RenewalFailed(ctx context.Context, orgID snowflake.ID) (Subscription, error)
	// ExpireGracePeriod applies the grace_period -> free transition. Usage
	// counters are preserved even when they exceed the free-tier limits.
	ExpireGracePeriod(ctx context.Context, orgID snowflake.ID) (Subscription, error)
	// ManualDowngrade performs the grace_period -> free transition without
	// waiting for the timer. Restricted to privileged callers.
	ManualDowngrade(ctx context.Context, orgID snowflake.ID) (Subscription, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionExists   = errors.New("subscription_exists")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrAlreadyOnPlan        = errors.New("already_on_plan")
	ErrPermissionDenied     = errors.New("permission_denied")
)
