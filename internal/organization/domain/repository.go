package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Organization, error)

	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
	FindMember(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) (*Member, error)
	ListMembers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Member, error)
	DeleteMember(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) error
}
