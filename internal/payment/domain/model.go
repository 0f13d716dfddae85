// Package domain defines the payment verification contracts. Nothing in this
// package mutates a subscription; verified results are handed to the
// subscription service by the plan-change flow.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
)

// VerifiedPayment is the gateway's account of a transaction.
type VerifiedPayment struct {
	Reference        string
	Status           string
	AmountPaid       int64
	Currency         string
	CustomerRef      string
	AuthorizationRef string
	GatewayMessage   string
}

// Gateway is the external payment processor. Verify performs exactly one
// gateway call per invocation; retries are the caller's decision.
type Gateway interface {
	Verify(ctx context.Context, reference string) (VerifiedPayment, error)
	ChargeAuthorization(ctx context.Context, authorizationRef, customerRef string, amount int64, currency string) (VerifiedPayment, error)
}

// PlanChangeOffer is the payload handed to the external payment widget.
type PlanChangeOffer struct {
	Tier         plandomain.Tier `json:"tier"`
	Name         string          `json:"name"`
	Amount       int64           `json:"amount"`
	Currency     string          `json:"currency"`
	Features     []string        `json:"features"`
	SubjectLimit int             `json:"subject_limit"`
	StudentLimit int             `json:"student_limit"`
}

type PreparePlanChangeRequest struct {
	OrgID      snowflake.ID
	TargetTier plandomain.Tier
	Currency   string
	PromoCode  string
}

type CompletePlanChangeRequest struct {
	TransactionRef string
	OrgID          snowflake.ID
	MemberID       snowflake.ID
	TargetTier     plandomain.Tier
	AmountClaimed  int64
	Currency       string
	PromoCode      string
}

type CompletePlanChangeResponse struct {
	Success       bool                            `json:"success"`
	TransactionID string                          `json:"transaction_id"`
	Subscription  subscriptiondomain.Subscription `json:"subscription"`
}

type Service interface {
	// PreparePlanChange validates an upgrade request and returns the widget
	// payload. No side effects besides promo validation.
	PreparePlanChange(ctx context.Context, req PreparePlanChangeRequest) (PlanChangeOffer, error)

	// CompletePlanChange runs verify -> reconcile -> ledger -> subscription.
	// Verification and reconciliation failures still produce a failed ledger
	// entry before the error returns. Re-running with a reference already
	// recorded success re-applies the subscription update without re-charging.
	CompletePlanChange(ctx context.Context, req CompletePlanChangeRequest) (CompletePlanChangeResponse, error)

	// Reconcile fails when the verified amount differs from the expected one.
	Reconcile(expected int64, verified VerifiedPayment) error
}

var (
	ErrVerificationFailed = errors.New("verification_failed")
	ErrAmountMismatch     = errors.New("amount_mismatch")
)
