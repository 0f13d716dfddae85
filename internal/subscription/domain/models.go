// Package domain contains persistence models for organization subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
)

// Status represents lifecycle states for a subscription. The free tier is
// modeled as ACTIVE with PlanTier=free, so downgrade re-enters ACTIVE.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusGracePeriod Status = "GRACE_PERIOD"
)

// GracePeriod is the window between a failed or cancelled renewal and the
// forced downgrade to the free tier.
const GracePeriod = 3 * 24 * time.Hour

// Subscription captures an organization's current plan, usage ceilings and
// billing dates. One record per organization, never hard-deleted.
type Subscription struct {
	ID                      snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID                   snowflake.ID    `gorm:"not null;uniqueIndex:ux_subscriptions_org" json:"org_id"`
	PlanTier                plandomain.Tier `gorm:"type:text;not null" json:"plan_tier"`
	Status                  Status          `gorm:"type:text;not null" json:"status"`
	SubjectLimit            int             `gorm:"not null" json:"subject_limit"`
	StudentLimit            int             `gorm:"not null" json:"student_limit"`
	CurrentSubjects         int             `gorm:"not null;default:0" json:"current_subjects"`
	CurrentStudents         int             `gorm:"not null;default:0" json:"current_students"`
	MemberCount             int             `gorm:"not null;default:0" json:"member_count"`
	Amount                  int64           `gorm:"not null;default:0" json:"amount"`
	Currency                string          `gorm:"type:text;not null" json:"currency"`
	StartDate               time.Time       `gorm:"not null" json:"start_date"`
	ExpiryDate              *time.Time      `gorm:"" json:"expiry_date,omitempty"`
	GracePeriodEnd          *time.Time      `gorm:"" json:"grace_period_end,omitempty"`
	CancelledAt             *time.Time      `gorm:"" json:"cancelled_at,omitempty"`
	LastPaymentDate         *time.Time      `gorm:"" json:"last_payment_date,omitempty"`
	ExternalCustomerRef     *string         `gorm:"type:text" json:"external_customer_ref,omitempty"`
	ExternalSubscriptionRef *string         `gorm:"type:text" json:"external_subscription_ref,omitempty"`
	CreatedAt               time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// HasStoredPaymentMethod reports whether an automatic renewal charge can be
// attempted against the gateway.
func (s Subscription) HasStoredPaymentMethod() bool {
	return s.ExternalSubscriptionRef != nil && *s.ExternalSubscriptionRef != ""
}

// Current returns the organization counter for the given resource.
func (s Subscription) Current(resource ResourceKind) int {
	if resource == ResourceStudent {
		return s.CurrentStudents
	}
	return s.CurrentSubjects
}

// Limit returns the enforced ceiling for the given resource.
func (s Subscription) Limit(resource ResourceKind) int {
	if resource == ResourceStudent {
		return s.StudentLimit
	}
	return s.SubjectLimit
}

// ResourceKind identifies a consumable resource counted against the shared pool.
type ResourceKind string

const (
	ResourceSubject ResourceKind = "subject"
	ResourceStudent ResourceKind = "student"
)

// ParseResourceKind normalizes a raw resource string.
func ParseResourceKind(raw string) (ResourceKind, bool) {
	switch ResourceKind(raw) {
	case ResourceSubject:
		return ResourceSubject, true
	case ResourceStudent:
		return ResourceStudent, true
	default:
		return "", false
	}
}
