package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() transactiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *transactiondomain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) Amend(ctx context.Context, db *gorm.DB, txn *transactiondomain.Transaction) error {
	return db.WithContext(ctx).Model(&transactiondomain.Transaction{}).
		Where("id = ?", txn.ID).
		UpdateColumns(map[string]any{
			"status":           txn.Status,
			"gateway_response": txn.GatewayResponse,
			"completed_at":     txn.CompletedAt,
		}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, reference string) (*transactiondomain.Transaction, error) {
	var txn transactiondomain.Transaction
	err := db.WithContext(ctx).Where("id = ?", reference).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repo) FindByOwnerKeys(ctx context.Context, db *gorm.DB, keys []snowflake.ID) ([]transactiondomain.Transaction, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var txns []transactiondomain.Transaction
	err := db.WithContext(ctx).
		Where("org_id IN ? OR initiated_by IN ? OR paid_by IN ?", keys, keys, keys).
		Order("created_at desc").
		Find(&txns).Error
	return txns, err
}
