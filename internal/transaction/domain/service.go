package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Record upserts a ledger entry keyed by the gateway reference. Recording
	// the same reference with the same status is an observational no-op, so
	// the verify and subscription-update steps can each be retried after a
	// partial failure.
	Record(ctx context.Context, txn Transaction) (Transaction, error)

	// Get returns the ledger entry for a gateway reference, or nil.
	Get(ctx context.Context, reference string) (*Transaction, error)

	// History lists the organization's transactions newest first, unioning
	// rows filed under any of the legacy owner keys and de-duplicating by
	// transaction id.
	History(ctx context.Context, orgID snowflake.ID) ([]Transaction, error)
}

var (
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidStatus    = errors.New("invalid_status")
)
