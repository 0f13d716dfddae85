package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	organizationrepo "github.com/classbill/classbill/internal/organization/repository"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	transactionrepo "github.com/classbill/classbill/internal/transaction/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node, *fakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.Member{},
		&transactiondomain.Transaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &fakeClock{now: time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)}

	svc := &Service{
		db:      db,
		log:     zaptest.NewLogger(t),
		clock:   clk,
		repo:    transactionrepo.Provide(),
		orgRepo: organizationrepo.Provide(),
	}
	return svc, db, node, clk
}

func TestRecordIsIdempotentByReference(t *testing.T) {
	svc, _, node, clk := newService(t)
	ctx := context.Background()
	orgID := node.Generate()

	txn := transactiondomain.Transaction{
		ID:       "PSK_ref_001",
		OrgID:    orgID,
		PlanTier: plandomain.TierPremium,
		Amount:   500000,
		Currency: "NGN",
		Status:   transactiondomain.StatusSuccess,
	}

	first, err := svc.Record(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, clk.now, first.CreatedAt)

	// Same reference, same status. Nothing changes.
	second, err := svc.Record(ctx, txn)
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	history, err := svc.History(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRecordAmendsPendingToFinalStatus(t *testing.T) {
	svc, _, node, clk := newService(t)
	ctx := context.Background()
	orgID := node.Generate()

	_, err := svc.Record(ctx, transactiondomain.Transaction{
		ID: "PSK_ref_002", OrgID: orgID,
		PlanTier: plandomain.TierPremium, Amount: 500000, Currency: "NGN",
		Status: transactiondomain.StatusPending,
	})
	require.NoError(t, err)

	updated, err := svc.Record(ctx, transactiondomain.Transaction{
		ID: "PSK_ref_002", OrgID: orgID,
		PlanTier: plandomain.TierPremium, Amount: 500000, Currency: "NGN",
		Status:          transactiondomain.StatusSuccess,
		GatewayResponse: "Approved",
	})
	require.NoError(t, err)
	assert.Equal(t, transactiondomain.StatusSuccess, updated.Status)
	assert.Equal(t, "Approved", updated.GatewayResponse)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, clk.now, *updated.CompletedAt)
}

func TestRecordValidation(t *testing.T) {
	svc, _, node, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, transactiondomain.Transaction{ID: "  ", OrgID: node.Generate()})
	assert.ErrorIs(t, err, transactiondomain.ErrInvalidReference)

	_, err = svc.Record(ctx, transactiondomain.Transaction{
		ID: "PSK_ref_003", OrgID: node.Generate(), Status: transactiondomain.Status("refunded"),
	})
	assert.ErrorIs(t, err, transactiondomain.ErrInvalidStatus)
}

func TestHistoryUnionsLegacyOwnerKeys(t *testing.T) {
	svc, db, node, clk := newService(t)
	ctx := context.Background()

	orgID := node.Generate()
	memberID := node.Generate()
	require.NoError(t, db.Create(&organizationdomain.Organization{
		ID: orgID, Name: "Hillcrest", Slug: "hillcrest",
		CreatedAt: clk.now, UpdatedAt: clk.now,
	}).Error)
	require.NoError(t, db.Create(&organizationdomain.Member{
		ID: memberID, OrgID: orgID, Email: "t@example.com",
		Role: organizationdomain.RoleAdmin, JoinedAt: clk.now,
	}).Error)

	// An old row filed under the paying member, plus a current org-keyed row
	// that also names the member as payer.
	require.NoError(t, db.Create(&transactiondomain.Transaction{
		ID: "LEGACY_01", OrgID: memberID, InitiatedBy: memberID, PaidBy: &memberID,
		PlanTier: plandomain.TierPremium, Amount: 500000, Currency: "NGN",
		Status: transactiondomain.StatusSuccess, CreatedAt: clk.now.Add(-48 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&transactiondomain.Transaction{
		ID: "CURRENT_01", OrgID: orgID, InitiatedBy: memberID, PaidBy: &memberID,
		PlanTier: plandomain.TierVIP, Amount: 1500000, Currency: "NGN",
		Status: transactiondomain.StatusSuccess, CreatedAt: clk.now,
	}).Error)

	history, err := svc.History(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "CURRENT_01", history[0].ID)
	assert.Equal(t, "LEGACY_01", history[1].ID)
}

func TestGet(t *testing.T) {
	svc, _, node, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "")
	assert.ErrorIs(t, err, transactiondomain.ErrInvalidReference)

	missing, err := svc.Get(ctx, "PSK_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Record(ctx, transactiondomain.Transaction{
		ID: "PSK_ref_004", OrgID: node.Generate(),
		PlanTier: plandomain.TierPremium, Amount: 500000, Currency: "NGN",
		Status: transactiondomain.StatusFailed,
	})
	require.NoError(t, err)

	found, err := svc.Get(ctx, "PSK_ref_004")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, transactiondomain.StatusFailed, found.Status)
}
