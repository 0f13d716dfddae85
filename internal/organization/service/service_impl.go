package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/classbill/classbill/internal/clock"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	"github.com/classbill/classbill/pkg/db"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  organizationdomain.Repository

	subscriptionSvc subscriptiondomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  organizationdomain.Repository

	SubscriptionSvc subscriptiondomain.Service
}

func NewService(p ServiceParam) organizationdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("organization.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		subscriptionSvc: p.SubscriptionSvc,
	}
}

// Create implements domain.Service.
func (s *Service) Create(ctx context.Context, req organizationdomain.CreateOrganizationRequest) (organizationdomain.CreateOrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return organizationdomain.CreateOrganizationResponse{}, organizationdomain.ErrInvalidName
	}
	adminEmail := strings.TrimSpace(req.AdminEmail)
	if adminEmail == "" || !strings.Contains(adminEmail, "@") {
		return organizationdomain.CreateOrganizationResponse{}, organizationdomain.ErrInvalidEmail
	}

	orgSlug := slug.Make(name)
	existing, err := s.repo.FindBySlug(ctx, s.db, orgSlug)
	if err != nil {
		return organizationdomain.CreateOrganizationResponse{}, err
	}
	if existing != nil {
		return organizationdomain.CreateOrganizationResponse{}, organizationdomain.ErrSlugTaken
	}

	now := s.clock.Now()
	org := organizationdomain.Organization{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         orgSlug,
		SupportEmail: strings.TrimSpace(req.SupportEmail),
		CountryCode:  strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	admin := organizationdomain.Member{
		ID:       s.genID.Generate(),
		OrgID:    org.ID,
		Email:    adminEmail,
		Role:     organizationdomain.RoleAdmin,
		JoinedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &org); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return organizationdomain.ErrSlugTaken
			}
			return err
		}
		return s.repo.InsertMember(ctx, tx, &admin)
	})
	if err != nil {
		return organizationdomain.CreateOrganizationResponse{}, err
	}

	// The subscription row is seeded outside the org transaction so the free
	// tier always exists even if a later step is retried.
	if _, err := s.subscriptionSvc.CreateForOrg(ctx, org.ID); err != nil {
		return organizationdomain.CreateOrganizationResponse{}, err
	}
	if err := s.bumpMemberCount(ctx, org.ID, 1); err != nil {
		return organizationdomain.CreateOrganizationResponse{}, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	return organizationdomain.CreateOrganizationResponse{Organization: org, Admin: admin}, nil
}

// GetByID implements domain.Service.
func (s *Service) GetByID(ctx context.Context, orgID snowflake.ID) (organizationdomain.Organization, error) {
	org, err := s.repo.FindByID(ctx, s.db, orgID)
	if err != nil {
		return organizationdomain.Organization{}, err
	}
	if org == nil {
		return organizationdomain.Organization{}, organizationdomain.ErrOrganizationNotFound
	}
	return *org, nil
}

// AddMember implements domain.Service.
func (s *Service) AddMember(ctx context.Context, req organizationdomain.AddMemberRequest) (organizationdomain.Member, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return organizationdomain.Member{}, organizationdomain.ErrInvalidEmail
	}
	role := req.Role
	if role == "" {
		role = organizationdomain.RoleMember
	}
	if role != organizationdomain.RoleAdmin && role != organizationdomain.RoleMember {
		return organizationdomain.Member{}, organizationdomain.ErrInvalidRole
	}

	org, err := s.repo.FindByID(ctx, s.db, req.OrgID)
	if err != nil {
		return organizationdomain.Member{}, err
	}
	if org == nil {
		return organizationdomain.Member{}, organizationdomain.ErrOrganizationNotFound
	}

	member := organizationdomain.Member{
		ID:       s.genID.Generate(),
		OrgID:    req.OrgID,
		Email:    email,
		Role:     role,
		JoinedAt: s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertMember(ctx, tx, &member); err != nil {
			return err
		}
		return tx.Model(&subscriptiondomain.Subscription{}).
			Where("org_id = ?", req.OrgID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1")).Error
	})
	if err != nil {
		return organizationdomain.Member{}, err
	}
	return member, nil
}

// RemoveMember implements domain.Service. The member's attributed counters
// are reversed out of the organization totals in the same transaction as the
// delete so the counter pair cannot drift.
func (s *Service) RemoveMember(ctx context.Context, orgID, memberID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.repo.FindMember(ctx, tx, orgID, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return organizationdomain.ErrMemberNotFound
		}

		if err := s.repo.DeleteMember(ctx, tx, orgID, memberID); err != nil {
			return err
		}

		return tx.Model(&subscriptiondomain.Subscription{}).
			Where("org_id = ?", orgID).
			UpdateColumns(map[string]any{
				"current_subjects": gorm.Expr("current_subjects - ?", member.CurrentSubjects),
				"current_students": gorm.Expr("current_students - ?", member.CurrentStudents),
				"member_count":     gorm.Expr("member_count - 1"),
			}).Error
	})
}

// GetMember implements domain.Service.
func (s *Service) GetMember(ctx context.Context, orgID, memberID snowflake.ID) (organizationdomain.Member, error) {
	member, err := s.repo.FindMember(ctx, s.db, orgID, memberID)
	if err != nil {
		return organizationdomain.Member{}, err
	}
	if member == nil {
		return organizationdomain.Member{}, organizationdomain.ErrMemberNotFound
	}
	return *member, nil
}

func (s *Service) bumpMemberCount(ctx context.Context, orgID snowflake.ID, count int) error {
	return s.db.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("org_id = ?", orgID).
		Update("member_count", count).Error
}
