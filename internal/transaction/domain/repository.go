package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	Amend(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, reference string) (*Transaction, error)
	FindByOwnerKeys(ctx context.Context, db *gorm.DB, keys []snowflake.ID) ([]Transaction, error)
}
