// Package domain contains the immutable plan catalog types.
package domain

import (
	"errors"
	"strings"
)

// Tier identifies one of the fixed plan levels.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// ParseTier normalizes a raw tier string.
func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierFree:
		return TierFree, nil
	case TierPremium:
		return TierPremium, nil
	case TierVIP:
		return TierVIP, nil
	default:
		return "", ErrInvalidPlanTier
	}
}

// IsPaid reports whether the tier carries a billing cycle.
func (t Tier) IsPaid() bool {
	return t == TierPremium || t == TierVIP
}

type BillingCycle string

const (
	BillingCycleNone    BillingCycle = "none"
	BillingCycleMonthly BillingCycle = "monthly"
)

type LimitKind string

const (
	LimitKindFixed LimitKind = "fixed"
	LimitKindRange LimitKind = "range"
)

// Limit is a plan ceiling, either a fixed count or a min/max range.
// Ranges resolve to their maximum for limit checks.
type Limit struct {
	Kind  LimitKind `json:"kind" mapstructure:"kind"`
	Value int       `json:"value,omitempty" mapstructure:"value"`
	Min   int       `json:"min,omitempty" mapstructure:"min"`
	Max   int       `json:"max,omitempty" mapstructure:"max"`
}

func Fixed(v int) Limit {
	return Limit{Kind: LimitKindFixed, Value: v}
}

func Range(min, max int) Limit {
	return Limit{Kind: LimitKindRange, Min: min, Max: max}
}

// Resolve collapses the limit to the single value used for enforcement.
func (l Limit) Resolve() int {
	if l.Kind == LimitKindRange {
		return l.Max
	}
	return l.Value
}

// Plan describes one tier of service. Immutable at runtime.
type Plan struct {
	Tier            Tier             `json:"tier" mapstructure:"tier"`
	Name            string           `json:"name" mapstructure:"name"`
	PriceByCurrency map[string]int64 `json:"price_by_currency" mapstructure:"price_by_currency"`
	SubjectLimit    Limit            `json:"subject_limit" mapstructure:"subject_limit"`
	StudentLimit    Limit            `json:"student_limit" mapstructure:"student_limit"`
	Features        []string         `json:"features" mapstructure:"features"`
	BillingCycle    BillingCycle     `json:"billing_cycle" mapstructure:"billing_cycle"`
}

// Price returns the plan price in the requested currency.
func (p Plan) Price(currency string) (int64, bool) {
	amount, ok := p.PriceByCurrency[strings.ToUpper(strings.TrimSpace(currency))]
	return amount, ok
}

// Catalog resolves plan tiers to their definitions.
type Catalog interface {
	Resolve(tier Tier) (Plan, error)
	All() []Plan
}

var (
	ErrInvalidPlanTier     = errors.New("invalid_plan_tier")
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
)
