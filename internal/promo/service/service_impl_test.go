package service

import (
	"context"
	"testing"
	"time"

	promodomain "github.com/classbill/classbill/internal/promo/domain"
	promorepo "github.com/classbill/classbill/internal/promo/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&promodomain.PromoCode{}))

	clk := &fakeClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	svc := &Service{
		db:    db,
		log:   zaptest.NewLogger(t),
		clock: clk,
		repo:  promorepo.Provide(),
	}
	return svc, clk
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		promo promodomain.PromoCode
	}{
		{"empty code", promodomain.PromoCode{DiscountType: promodomain.DiscountPercentage, Value: 10, MaxUses: 5}},
		{"zero max uses", promodomain.PromoCode{Code: "BACK2SCHOOL", DiscountType: promodomain.DiscountPercentage, Value: 10}},
		{"percent over 100", promodomain.PromoCode{Code: "BACK2SCHOOL", DiscountType: promodomain.DiscountPercentage, Value: 150, MaxUses: 5}},
		{"fixed non-positive", promodomain.PromoCode{Code: "BACK2SCHOOL", DiscountType: promodomain.DiscountFixed, Value: 0, MaxUses: 5}},
		{"unknown type", promodomain.PromoCode{Code: "BACK2SCHOOL", DiscountType: "bogo", Value: 10, MaxUses: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.promo)
			assert.ErrorIs(t, err, promodomain.ErrInvalidPromo)
		})
	}

	created, err := svc.Create(ctx, promodomain.PromoCode{
		Code: " back2school ", DiscountType: promodomain.DiscountPercentage, Value: 20, MaxUses: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "BACK2SCHOOL", created.Code)
	assert.Equal(t, 0, created.CurrentUses)
}

func TestPreviewDiscounts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, promodomain.PromoCode{
		Code: "HALF", DiscountType: promodomain.DiscountPercentage, Value: 50, MaxUses: 10,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, promodomain.PromoCode{
		Code: "NGN5K", DiscountType: promodomain.DiscountFixed, Value: 500000, Currency: "NGN", MaxUses: 10,
	})
	require.NoError(t, err)

	discounted, err := svc.Preview(ctx, "half", 500000, "NGN")
	require.NoError(t, err)
	assert.Equal(t, int64(250000), discounted)

	// A fixed discount larger than the price floors at zero.
	discounted, err = svc.Preview(ctx, "NGN5K", 300000, "NGN")
	require.NoError(t, err)
	assert.Equal(t, int64(0), discounted)

	_, err = svc.Preview(ctx, "NGN5K", 1000, "USD")
	assert.ErrorIs(t, err, promodomain.ErrPromoCurrencyMismatch)

	_, err = svc.Preview(ctx, "MISSING", 1000, "NGN")
	assert.ErrorIs(t, err, promodomain.ErrPromoNotFound)
}

func TestRedeemConsumesUses(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, promodomain.PromoCode{
		Code: "TWICE", DiscountType: promodomain.DiscountPercentage, Value: 10, MaxUses: 2,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		discounted, err := svc.Redeem(ctx, "TWICE", 100000, "NGN")
		require.NoError(t, err)
		assert.Equal(t, int64(90000), discounted)
	}

	// Preview still resolves the code but redeeming is exhausted.
	_, err = svc.Redeem(ctx, "TWICE", 100000, "NGN")
	assert.ErrorIs(t, err, promodomain.ErrPromoExhausted)

	promo, err := svc.Get(ctx, "TWICE")
	require.NoError(t, err)
	assert.Equal(t, 2, promo.CurrentUses)
}

func TestRedeemExpired(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	expires := clk.now.Add(24 * time.Hour)
	_, err := svc.Create(ctx, promodomain.PromoCode{
		Code: "FLASH", DiscountType: promodomain.DiscountPercentage, Value: 10, MaxUses: 100,
		ExpiresAt: &expires,
	})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "FLASH", 100000, "NGN")
	require.NoError(t, err)

	clk.now = clk.now.Add(48 * time.Hour)
	_, err = svc.Redeem(ctx, "FLASH", 100000, "NGN")
	assert.ErrorIs(t, err, promodomain.ErrPromoExpired)
}

func TestDiscountNeverNegative(t *testing.T) {
	promo := promodomain.PromoCode{DiscountType: promodomain.DiscountFixed, Value: 200}
	assert.Equal(t, int64(0), promo.Discount(100))

	promo = promodomain.PromoCode{DiscountType: promodomain.DiscountPercentage, Value: 100}
	assert.Equal(t, int64(0), promo.Discount(100000))
}
