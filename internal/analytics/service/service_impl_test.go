package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	analyticsrepo "github.com/classbill/classbill/internal/analytics/repository"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
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
		&analyticsdomain.LifecycleEvent{},
		&transactiondomain.Transaction{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}

	svc := &Service{
		db:    db,
		log:   zaptest.NewLogger(t),
		genID: node,
		clock: clk,
		repo:  analyticsrepo.Provide(),
	}
	return svc, db, node, clk
}

func TestRecordFillsDefaults(t *testing.T) {
	svc, db, node, clk := newService(t)
	ctx := context.Background()
	orgID := node.Generate()

	require.NoError(t, svc.Record(ctx, analyticsdomain.LifecycleEvent{
		OrgID:     orgID,
		EventType: analyticsdomain.EventUpgrade,
		FromTier:  plandomain.TierFree,
		ToTier:    plandomain.TierPremium,
		Amount:    500000,
		Currency:  "NGN",
	}))

	var stored analyticsdomain.LifecycleEvent
	require.NoError(t, db.First(&stored, "org_id = ?", orgID).Error)
	assert.NotZero(t, stored.ID)
	assert.True(t, stored.OccurredAt.Equal(clk.now))
}

func TestRecordValidation(t *testing.T) {
	svc, _, node, _ := newService(t)
	ctx := context.Background()

	err := svc.Record(ctx, analyticsdomain.LifecycleEvent{EventType: analyticsdomain.EventUpgrade})
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidEvent)

	err = svc.Record(ctx, analyticsdomain.LifecycleEvent{OrgID: node.Generate()})
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidEvent)
}

func TestEventsForOrgNewestFirst(t *testing.T) {
	svc, _, node, clk := newService(t)
	ctx := context.Background()
	orgID := node.Generate()

	for i, et := range []analyticsdomain.EventType{
		analyticsdomain.EventUpgrade,
		analyticsdomain.EventRenewal,
		analyticsdomain.EventPaymentFailed,
	} {
		require.NoError(t, svc.Record(ctx, analyticsdomain.LifecycleEvent{
			OrgID:      orgID,
			EventType:  et,
			OccurredAt: clk.now.Add(time.Duration(i) * time.Hour),
		}))
	}

	events, err := svc.EventsForOrg(ctx, orgID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, analyticsdomain.EventPaymentFailed, events[0].EventType)
	assert.Equal(t, analyticsdomain.EventRenewal, events[1].EventType)

	_, err = svc.EventsForOrg(ctx, 0, 10)
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidEvent)
}

func TestSummary(t *testing.T) {
	svc, db, node, clk := newService(t)
	ctx := context.Background()

	// Two successful charges and one failed; only successes count as revenue.
	for i, txn := range []transactiondomain.Transaction{
		{ID: "T1", PlanTier: plandomain.TierPremium, Amount: 500000, Currency: "NGN", Status: transactiondomain.StatusSuccess},
		{ID: "T2", PlanTier: plandomain.TierPremium, Amount: 500000, Currency: "NGN", Status: transactiondomain.StatusSuccess},
		{ID: "T3", PlanTier: plandomain.TierVIP, Amount: 1500000, Currency: "NGN", Status: transactiondomain.StatusFailed},
	} {
		txn.OrgID = node.Generate()
		txn.CreatedAt = clk.now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.Create(&txn).Error)
	}

	for _, sub := range []subscriptiondomain.Subscription{
		{PlanTier: plandomain.TierFree, Status: subscriptiondomain.StatusActive},
		{PlanTier: plandomain.TierPremium, Status: subscriptiondomain.StatusActive},
		{PlanTier: plandomain.TierPremium, Status: subscriptiondomain.StatusGracePeriod},
	} {
		sub.ID = node.Generate()
		sub.OrgID = node.Generate()
		sub.Currency = "NGN"
		sub.StartDate = clk.now
		sub.CreatedAt = clk.now
		sub.UpdatedAt = clk.now
		require.NoError(t, db.Create(&sub).Error)
	}

	require.NoError(t, svc.Record(ctx, analyticsdomain.LifecycleEvent{
		OrgID: node.Generate(), EventType: analyticsdomain.EventRenewal,
	}))

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.GeneratedAt.Equal(clk.now))

	require.Len(t, summary.Revenue, 1)
	assert.Equal(t, plandomain.TierPremium, summary.Revenue[0].PlanTier)
	assert.Equal(t, int64(1000000), summary.Revenue[0].Total)
	assert.Equal(t, int64(2), summary.Revenue[0].Count)

	assert.Len(t, summary.Subscriptions, 3)
	assert.Equal(t, int64(1), summary.EventCounts[analyticsdomain.EventRenewal])
}
