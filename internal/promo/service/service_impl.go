package service

import (
	"context"
	"strings"

	"github.com/classbill/classbill/internal/clock"
	promodomain "github.com/classbill/classbill/internal/promo/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock clock.Clock
	repo  promodomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  promodomain.Repository
}

func NewService(p ServiceParam) promodomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("promo.service"),

		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, promo promodomain.PromoCode) (promodomain.PromoCode, error) {
	promo.Code = normalize(promo.Code)
	if promo.Code == "" || promo.MaxUses <= 0 {
		return promodomain.PromoCode{}, promodomain.ErrInvalidPromo
	}
	switch promo.DiscountType {
	case promodomain.DiscountPercentage:
		if promo.Value < 1 || promo.Value > 100 {
			return promodomain.PromoCode{}, promodomain.ErrInvalidPromo
		}
	case promodomain.DiscountFixed:
		if promo.Value <= 0 {
			return promodomain.PromoCode{}, promodomain.ErrInvalidPromo
		}
	default:
		return promodomain.PromoCode{}, promodomain.ErrInvalidPromo
	}
	promo.CurrentUses = 0
	promo.CreatedAt = s.clock.Now()
	if err := s.repo.Insert(ctx, s.db, promo); err != nil {
		return promodomain.PromoCode{}, err
	}
	return promo, nil
}

func (s *Service) Get(ctx context.Context, code string) (promodomain.PromoCode, error) {
	promo, err := s.lookup(ctx, code)
	if err != nil {
		return promodomain.PromoCode{}, err
	}
	return *promo, nil
}

func (s *Service) Preview(ctx context.Context, code string, amount int64, currency string) (int64, error) {
	promo, err := s.lookup(ctx, code)
	if err != nil {
		return 0, err
	}
	if err := s.usable(*promo, currency); err != nil {
		return 0, err
	}
	return promo.Discount(amount), nil
}

func (s *Service) Redeem(ctx context.Context, code string, amount int64, currency string) (int64, error) {
	promo, err := s.lookup(ctx, code)
	if err != nil {
		return 0, err
	}
	if err := s.usable(*promo, currency); err != nil {
		return 0, err
	}

	consumed, err := s.repo.Consume(ctx, s.db, promo.Code, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if !consumed {
		// The guarded update lost to a concurrent redemption or the code
		// expired between lookup and consume.
		if promo.ExpiresAt != nil && !s.clock.Now().Before(*promo.ExpiresAt) {
			return 0, promodomain.ErrPromoExpired
		}
		return 0, promodomain.ErrPromoExhausted
	}

	s.log.Info("promo redeemed",
		zap.String("code", promo.Code),
		zap.Int64("amount_before", amount),
		zap.Int64("amount_after", promo.Discount(amount)),
	)
	return promo.Discount(amount), nil
}

func (s *Service) lookup(ctx context.Context, code string) (*promodomain.PromoCode, error) {
	code = normalize(code)
	if code == "" {
		return nil, promodomain.ErrPromoNotFound
	}
	promo, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, promodomain.ErrPromoNotFound
	}
	return promo, nil
}

func (s *Service) usable(promo promodomain.PromoCode, currency string) error {
	if promo.ExpiresAt != nil && !s.clock.Now().Before(*promo.ExpiresAt) {
		return promodomain.ErrPromoExpired
	}
	if promo.CurrentUses >= promo.MaxUses {
		return promodomain.ErrPromoExhausted
	}
	if promo.DiscountType == promodomain.DiscountFixed && promo.Currency != "" &&
		!strings.EqualFold(promo.Currency, currency) {
		return promodomain.ErrPromoCurrencyMismatch
	}
	return nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
