// Package domain contains persistence models for the organization aggregate.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents a school: the billable entity owning one
// subscription and a shared usage pool.
type Organization struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Slug         string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	SupportEmail string            `gorm:"type:text;column:support_email" json:"support_email"`
	CountryCode  string            `gorm:"column:country_code" json:"country_code"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// MemberRole is the member's role inside the organization.
type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Member represents a teacher belonging to exactly one organization. The
// per-member counters mirror a slice of the organization totals for
// attribution; the organization's counters are the authoritative values for
// limit checks.
type Member struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID `gorm:"not null;index" json:"org_id"`
	Email           string       `gorm:"type:text;not null" json:"email"`
	Role            MemberRole   `gorm:"type:text;not null" json:"role"`
	CurrentSubjects int          `gorm:"not null;default:0" json:"current_subjects"`
	CurrentStudents int          `gorm:"not null;default:0" json:"current_students"`
	JoinedAt        time.Time    `gorm:"not null" json:"joined_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }
