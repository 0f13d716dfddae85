// Package domain defines the usage ledger contract: the shared-pool limit
// check and the paired member/organization counters behind it.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
)

// Stats is the read model for one resource kind.
type Stats struct {
	Resource subscriptiondomain.ResourceKind `json:"resource"`
	Current  int                             `json:"current"`
	Limit    int                             `json:"limit"`
	// Percent is capped at 100 for display. NearLimit is computed from the
	// raw ratio, so an over-limit record still reports near.
	Percent   int  `json:"percent"`
	NearLimit bool `json:"near_limit"`
}

type Service interface {
	// CheckLimit reports whether one more unit of the resource may be
	// registered. False whenever the subscription is in its grace period or
	// current >= limit; the comparison is strictly less-than.
	CheckLimit(ctx context.Context, orgID snowflake.ID, resource subscriptiondomain.ResourceKind) (bool, error)

	// Increment adds one unit to both the member's and the organization's
	// counter atomically. It does not re-check the limit; callers own the
	// check-then-act race (a single-unit overshoot under concurrency is
	// accepted and self-correcting).
	Increment(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind) error

	// Decrement removes one unit from both counters atomically. Counters
	// never go below zero; a decrement at zero returns ErrUsageUnderflow.
	Decrement(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind) error

	// Register is the check-then-increment convenience used by the request
	// path. A refused registration returns ErrLimitReached.
	Register(ctx context.Context, orgID, memberID snowflake.ID, resource subscriptiondomain.ResourceKind) (Stats, error)

	IsNearLimit(ctx context.Context, orgID snowflake.ID, resource subscriptiondomain.ResourceKind) (bool, error)
	Stats(ctx context.Context, orgID snowflake.ID, resource subscriptiondomain.ResourceKind) (Stats, error)
}

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidResource       = errors.New("invalid_resource")
	ErrLimitReached          = errors.New("limit_reached")
	ErrUserNotInOrganization = errors.New("user_not_in_organization")
	ErrUsageUnderflow        = errors.New("usage_underflow")
)
