package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, promo PromoCode) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)

	// Consume advances current_uses by one, guarded so the count can never
	// pass max_uses and expired codes are never consumed. Returns false when
	// the guard rejected the update.
	Consume(ctx context.Context, db *gorm.DB, code string, now time.Time) (bool, error)
}
