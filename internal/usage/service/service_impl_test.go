package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	subscriptionrepo "github.com/classbill/classbill/internal/subscription/repository"
	usagedomain "github.com/classbill/classbill/internal/usage/domain"
	"github.com/classbill/classbill/internal/usage/liveevents"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	svc  *Service
	node *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.Member{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := &Service{
		db:               db,
		log:              zaptest.NewLogger(t),
		subscriptionRepo: subscriptionrepo.Provide(),
	}
	return &fixture{db: db, svc: svc, node: node}
}

func (f *fixture) seedOrg(t *testing.T, tier plandomain.Tier, subjectLimit, studentLimit int) (snowflake.ID, []snowflake.ID) {
	t.Helper()

	now := time.Now().UTC()
	orgID := f.node.Generate()
	require.NoError(t, f.db.Create(&organizationdomain.Organization{
		ID: orgID, Name: "Hillcrest", Slug: "hillcrest-" + orgID.String(),
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	var members []snowflake.ID
	for i := 0; i < 2; i++ {
		role := organizationdomain.RoleMember
		if i == 0 {
			role = organizationdomain.RoleAdmin
		}
		memberID := f.node.Generate()
		require.NoError(t, f.db.Create(&organizationdomain.Member{
			ID: memberID, OrgID: orgID, Email: "t@example.com", Role: role, JoinedAt: now,
		}).Error)
		members = append(members, memberID)
	}

	require.NoError(t, f.db.Create(&subscriptiondomain.Subscription{
		ID: f.node.Generate(), OrgID: orgID,
		PlanTier: tier, Status: subscriptiondomain.StatusActive,
		SubjectLimit: subjectLimit, StudentLimit: studentLimit,
		MemberCount: 2, Currency: "NGN",
		StartDate: now, CreatedAt: now, UpdatedAt: now,
	}).Error)

	return orgID, members
}

func TestSharedPoolAcrossMembers(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)
	ctx := context.Background()

	// Two different teachers draw from the same organization pool.
	_, err := f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
	assert.NoError(t, err)
	_, err = f.svc.Register(ctx, orgID, members[1], subscriptiondomain.ResourceSubject)
	assert.NoError(t, err)
	stats, err := f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.Current)
	assert.Equal(t, 3, stats.Limit)

	// Pool is full for everyone, including a member who added nothing.
	_, err = f.svc.Register(ctx, orgID, members[1], subscriptiondomain.ResourceSubject)
	assert.ErrorIs(t, err, usagedomain.ErrLimitReached)

	// Member attribution mirrors who added what.
	var m organizationdomain.Member
	require.NoError(t, f.db.First(&m, "id = ?", members[0]).Error)
	assert.Equal(t, 2, m.CurrentSubjects)
}

func TestRegisterAtLimitLeavesCountersUntouched(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceStudent)
		require.NoError(t, err)
	}

	stats, err := f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceStudent)
	assert.ErrorIs(t, err, usagedomain.ErrLimitReached)
	assert.Equal(t, 5, stats.Current)

	var sub subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&sub, "org_id = ?", orgID).Error)
	assert.Equal(t, 5, sub.CurrentStudents)
}

func TestCheckThenActPairIsNotAtomic(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)
	ctx := context.Background()

	require.NoError(t, f.svc.Increment(ctx, orgID, members[0], subscriptiondomain.ResourceSubject))
	require.NoError(t, f.svc.Increment(ctx, orgID, members[0], subscriptiondomain.ResourceSubject))

	// Two callers observe one free slot before either claims it.
	ok1, err := f.svc.CheckLimit(ctx, orgID, subscriptiondomain.ResourceSubject)
	require.NoError(t, err)
	ok2, err := f.svc.CheckLimit(ctx, orgID, subscriptiondomain.ResourceSubject)
	require.NoError(t, err)
	assert.True(t, ok1)
	assert.True(t, ok2)

	// Both increments land, so the pool can briefly exceed the ceiling.
	require.NoError(t, f.svc.Increment(ctx, orgID, members[0], subscriptiondomain.ResourceSubject))
	require.NoError(t, f.svc.Increment(ctx, orgID, members[1], subscriptiondomain.ResourceSubject))

	stats, err := f.svc.Stats(ctx, orgID, subscriptiondomain.ResourceSubject)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Current)
	assert.Equal(t, 100, stats.Percent)

	ok, err := f.svc.CheckLimit(ctx, orgID, subscriptiondomain.ResourceSubject)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGracePeriodBlocksNewUsage(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierPremium, 6, 20)
	ctx := context.Background()

	require.NoError(t, f.db.Model(&subscriptiondomain.Subscription{}).
		Where("org_id = ?", orgID).
		Update("status", subscriptiondomain.StatusGracePeriod).Error)

	ok, err := f.svc.CheckLimit(ctx, orgID, subscriptiondomain.ResourceSubject)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
	assert.ErrorIs(t, err, usagedomain.ErrLimitReached)
}

func TestDecrementFreesSlot(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Decrement(ctx, orgID, members[0], subscriptiondomain.ResourceSubject))

	_, err := f.svc.Register(ctx, orgID, members[1], subscriptiondomain.ResourceSubject)
	assert.NoError(t, err)
}

func TestDecrementAtZeroNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)
	ctx := context.Background()

	err := f.svc.Decrement(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
	assert.ErrorIs(t, err, usagedomain.ErrUsageUnderflow)

	var m organizationdomain.Member
	require.NoError(t, f.db.First(&m, "id = ?", members[0]).Error)
	assert.GreaterOrEqual(t, m.CurrentSubjects, 0)

	var sub subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&sub, "org_id = ?", orgID).Error)
	assert.GreaterOrEqual(t, sub.CurrentSubjects, 0)

	// Release everything that was registered, then one more.
	_, err = f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
	require.NoError(t, err)
	require.NoError(t, f.svc.Decrement(ctx, orgID, members[0], subscriptiondomain.ResourceSubject))
	err = f.svc.Decrement(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
	assert.ErrorIs(t, err, usagedomain.ErrUsageUnderflow)

	require.NoError(t, f.db.First(&sub, "org_id = ?", orgID).Error)
	assert.Equal(t, 0, sub.CurrentSubjects)
	require.NoError(t, f.db.First(&m, "id = ?", members[0]).Error)
	assert.Equal(t, 0, m.CurrentSubjects)
}

func TestDecrementOnlyGuardsTheAttributedMember(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)
	ctx := context.Background()

	// The pool holds one unit, but it belongs to the other member.
	_, err := f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceSubject)
	require.NoError(t, err)

	err = f.svc.Decrement(ctx, orgID, members[1], subscriptiondomain.ResourceSubject)
	assert.ErrorIs(t, err, usagedomain.ErrUsageUnderflow)

	var sub subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&sub, "org_id = ?", orgID).Error)
	assert.Equal(t, 1, sub.CurrentSubjects)
}

func TestIncrementUnknownMember(t *testing.T) {
	f := newFixture(t)
	orgID, _ := f.seedOrg(t, plandomain.TierFree, 3, 5)

	err := f.svc.Increment(context.Background(), orgID, f.node.Generate(), subscriptiondomain.ResourceSubject)
	assert.ErrorIs(t, err, usagedomain.ErrUserNotInOrganization)
}

func TestNearLimitThreshold(t *testing.T) {
	f := newFixture(t)
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.svc.Register(ctx, orgID, members[0], subscriptiondomain.ResourceStudent)
		require.NoError(t, err)
	}

	near, err := f.svc.IsNearLimit(ctx, orgID, subscriptiondomain.ResourceStudent)
	require.NoError(t, err)
	assert.True(t, near)

	stats, err := f.svc.Stats(ctx, orgID, subscriptiondomain.ResourceStudent)
	require.NoError(t, err)
	assert.Equal(t, 80, stats.Percent)
}

func TestLiveEventsPublishedOnRegister(t *testing.T) {
	f := newFixture(t)
	f.svc.liveEvents = liveevents.NewHub()
	orgID, members := f.seedOrg(t, plandomain.TierFree, 3, 5)

	sub := f.svc.liveEvents.Subscribe(orgID.String())
	defer sub.Close()

	_, err := f.svc.Register(context.Background(), orgID, members[0], subscriptiondomain.ResourceSubject)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, liveevents.TypeUsageChanged, ev.Type)
		assert.Equal(t, 1, ev.Current)
	case <-time.After(time.Second):
		t.Fatal("expected a usage event")
	}
}
