// Package domain holds the subscription lifecycle event log and the revenue
// summaries derived from it. The event log is append-only; summaries are
// computed from the ledger and subscription tables so they can always be
// rebuilt.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
)

type EventType string

const (
	EventUpgrade       EventType = "upgrade"
	EventRenewal       EventType = "renewal"
	EventPaymentFailed EventType = "payment_failed"
	EventCancellation  EventType = "cancellation"
	EventGraceEntered  EventType = "grace_entered"
	EventDowngrade     EventType = "downgrade"
)

// LifecycleEvent records one subscription state change for reporting.
type LifecycleEvent struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID    `gorm:"not null;index" json:"org_id"`
	EventType  EventType       `gorm:"type:text;not null;index" json:"event_type"`
	FromTier   plandomain.Tier `gorm:"type:text" json:"from_tier,omitempty"`
	ToTier     plandomain.Tier `gorm:"type:text" json:"to_tier,omitempty"`
	Amount     int64           `json:"amount,omitempty"`
	Currency   string          `gorm:"type:text" json:"currency,omitempty"`
	OccurredAt time.Time       `gorm:"not null;index" json:"occurred_at"`
}

// TableName sets the database table name.
func (LifecycleEvent) TableName() string { return "lifecycle_events" }

// RevenueLine is successful ledger volume grouped by tier and currency.
type RevenueLine struct {
	PlanTier plandomain.Tier `json:"plan_tier"`
	Currency string          `json:"currency"`
	Total    int64           `json:"total"`
	Count    int64           `json:"count"`
}

// TierCount is the live subscription population grouped by tier and status.
type TierCount struct {
	PlanTier plandomain.Tier `json:"plan_tier"`
	Status   string          `json:"status"`
	Count    int64           `json:"count"`
}

// Summary is the rebuildable analytics snapshot.
type Summary struct {
	GeneratedAt   time.Time           `json:"generated_at"`
	Revenue       []RevenueLine       `json:"revenue"`
	Subscriptions []TierCount         `json:"subscriptions"`
	EventCounts   map[EventType]int64 `json:"event_counts"`
}

type Service interface {
	// Record appends a lifecycle event. Failures are reported but must never
	// abort the billing operation that produced the event.
	Record(ctx context.Context, event LifecycleEvent) error

	EventsForOrg(ctx context.Context, orgID snowflake.ID, limit int) ([]LifecycleEvent, error)

	// Summary rebuilds the aggregates from the ledger and subscription
	// tables.
	Summary(ctx context.Context) (Summary, error)
}

var ErrInvalidEvent = errors.New("invalid_event")
