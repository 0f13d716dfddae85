// Package domain contains the append-mostly payment transaction ledger types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transaction records one payment attempt. The primary key is the gateway's
// transaction reference, which doubles as the idempotency key: a reference is
// written at most once per logical attempt and only status, gateway response
// and completion time may be amended afterwards.
//
// PaidBy carries the legacy owner key from the prior member-based billing
// model; history lookups union across OrgID, InitiatedBy and PaidBy.
type Transaction struct {
	ID              string          `gorm:"primaryKey;type:text" json:"id"`
	OrgID           snowflake.ID    `gorm:"not null;index" json:"org_id"`
	InitiatedBy     snowflake.ID    `gorm:"not null;index" json:"initiated_by"`
	PaidBy          *snowflake.ID   `gorm:"index" json:"paid_by,omitempty"`
	PlanTier        plandomain.Tier `gorm:"type:text;not null" json:"plan_tier"`
	Amount          int64           `gorm:"not null" json:"amount"`
	Currency        string          `gorm:"type:text;not null" json:"currency"`
	Status          Status          `gorm:"type:text;not null" json:"status"`
	GatewayResponse string          `gorm:"type:text" json:"gateway_response"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	CompletedAt     *time.Time      `gorm:"" json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }
