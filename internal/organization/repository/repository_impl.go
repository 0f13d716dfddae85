package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() organizationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *organizationdomain.Organization) error {
	return db.WithContext(ctx).Create(org).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := db.WithContext(ctx).Where("slug = ?", slug).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *organizationdomain.Member) error {
	return db.WithContext(ctx).Create(member).Error
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) (*organizationdomain.Member, error) {
	var member organizationdomain.Member
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, memberID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]organizationdomain.Member, error) {
	var members []organizationdomain.Member
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("joined_at asc").
		Find(&members).Error
	return members, err
}

func (r *repo) DeleteMember(ctx context.Context, db *gorm.DB, orgID, memberID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, memberID).
		Delete(&organizationdomain.Member{}).Error
}
