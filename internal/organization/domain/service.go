package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateOrganizationRequest struct {
	Name         string `json:"name"`
	SupportEmail string `json:"support_email"`
	CountryCode  string `json:"country_code"`
	AdminEmail   string `json:"admin_email"`
}

type CreateOrganizationResponse struct {
	Organization Organization `json:"organization"`
	Admin        Member       `json:"admin"`
}

type AddMemberRequest struct {
	OrgID snowflake.ID
	Email string
	Role  MemberRole
}

type Service interface {
	// Create registers the organization, its first admin member and the
	// free-tier subscription in one step.
	Create(ctx context.Context, req CreateOrganizationRequest) (CreateOrganizationResponse, error)
	GetByID(ctx context.Context, orgID snowflake.ID) (Organization, error)
	AddMember(ctx context.Context, req AddMemberRequest) (Member, error)
	// RemoveMember deletes the member and reverses their attributed usage out
	// of the organization counters.
	RemoveMember(ctx context.Context, orgID, memberID snowflake.ID) error
	GetMember(ctx context.Context, orgID, memberID snowflake.ID) (Member, error)
}

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrMemberNotFound       = errors.New("member_not_found")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrSlugTaken            = errors.New("slug_taken")
)
