// Package domain defines promotional discount codes applied to plan-change
// charges.
package domain

import (
	"context"
	"errors"
	"time"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a redeemable discount. CurrentUses only ever moves forward and
// is advanced by a conditional update so concurrent redemptions can never
// exceed MaxUses.
type PromoCode struct {
	Code         string       `gorm:"primaryKey;type:text" json:"code"`
	DiscountType DiscountType `gorm:"type:text;not null" json:"discount_type"`
	// Value is a percentage in [1,100] for percentage codes, or an amount in
	// minor units for fixed codes.
	Value       int64      `gorm:"not null" json:"value"`
	Currency    string     `gorm:"type:text" json:"currency,omitempty"`
	MaxUses     int        `gorm:"not null" json:"max_uses"`
	CurrentUses int        `gorm:"not null;default:0" json:"current_uses"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (PromoCode) TableName() string { return "promo_codes" }

// Discount returns the amount after applying the code, never below zero.
func (p PromoCode) Discount(amount int64) int64 {
	var discounted int64
	switch p.DiscountType {
	case DiscountPercentage:
		discounted = amount - amount*p.Value/100
	case DiscountFixed:
		discounted = amount - p.Value
	default:
		return amount
	}
	if discounted < 0 {
		return 0
	}
	return discounted
}

type Service interface {
	// Preview validates the code and returns the discounted amount without
	// consuming a use.
	Preview(ctx context.Context, code string, amount int64, currency string) (int64, error)

	// Redeem consumes one use and returns the discounted amount. The use
	// count advances atomically; exhausted or expired codes fail cleanly.
	Redeem(ctx context.Context, code string, amount int64, currency string) (int64, error)

	Create(ctx context.Context, promo PromoCode) (PromoCode, error)
	Get(ctx context.Context, code string) (PromoCode, error)
}

var (
	ErrPromoNotFound         = errors.New("promo_not_found")
	ErrPromoExpired          = errors.New("promo_expired")
	ErrPromoExhausted        = errors.New("promo_exhausted")
	ErrPromoCurrencyMismatch = errors.New("promo_currency_mismatch")
	ErrInvalidPromo          = errors.New("invalid_promo")
)
