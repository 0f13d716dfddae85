package repository

import (
	"context"
	"errors"
	"time"

	promodomain "github.com/classbill/classbill/internal/promo/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() promodomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, promo promodomain.PromoCode) error {
	return db.WithContext(ctx).Create(&promo).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*promodomain.PromoCode, error) {
	var promo promodomain.PromoCode
	err := db.WithContext(ctx).Where("code = ?", code).First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

func (r *repo) Consume(ctx context.Context, db *gorm.DB, code string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&promodomain.PromoCode{}).
		Where("code = ?", code).
		Where("current_uses < max_uses").
		Where("expires_at IS NULL OR expires_at > ?", now).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
