package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/classbill/classbill/internal/config"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	organizationrepo "github.com/classbill/classbill/internal/organization/repository"
	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	"github.com/classbill/classbill/internal/payment/gateway"
	"github.com/classbill/classbill/internal/plan/catalog"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	promodomain "github.com/classbill/classbill/internal/promo/domain"
	promorepo "github.com/classbill/classbill/internal/promo/repository"
	promoservice "github.com/classbill/classbill/internal/promo/service"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	subscriptionrepo "github.com/classbill/classbill/internal/subscription/repository"
	subscriptionservice "github.com/classbill/classbill/internal/subscription/service"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	transactionrepo "github.com/classbill/classbill/internal/transaction/repository"
	transactionservice "github.com/classbill/classbill/internal/transaction/service"
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

// gatewayStub scripts the verify endpoint and counts calls.
type gatewayStub struct {
	calls  atomic.Int64
	amount int64
	status string
	fail   bool
}

type fixture struct {
	svc    *Service
	ledger transactiondomain.Service
	subs   subscriptiondomain.Service
	promos promodomain.Service
	stub   *gatewayStub
	node   *snowflake.Node
	orgID  snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.Member{},
		&subscriptiondomain.Subscription{},
		&transactiondomain.Transaction{},
		&promodomain.PromoCode{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &fakeClock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
	log := zaptest.NewLogger(t)
	plans := catalog.NewStaticHolder(catalog.DefaultPlans())

	stub := &gatewayStub{amount: 500000, status: "success"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		if stub.fail {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status": false, "message": "Transaction reference not found"}`)
			return
		}
		fmt.Fprintf(w, `{
			"status": true,
			"data": {
				"reference": "ref",
				"status": %q,
				"amount": %d,
				"currency": "NGN",
				"authorization": {"authorization_code": "AUTH_xyz"},
				"customer": {"customer_code": "CUS_abc"},
				"gateway_response": "Approved"
			}
		}`, stub.status, stub.amount)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{}
	cfg.Gateway.BaseURL = srv.URL
	cfg.Gateway.SecretKey = "sk_test"
	cfg.Gateway.Timeout = 2 * time.Second

	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:    subscriptionrepo.Provide(),
		Catalog: plans,
	})
	ledger := transactionservice.NewService(transactionservice.ServiceParam{
		DB: db, Log: log, Clock: clk,
		Repo:    transactionrepo.Provide(),
		OrgRepo: organizationrepo.Provide(),
	})
	promos := promoservice.NewService(promoservice.ServiceParam{
		DB: db, Log: log, Clock: clk,
		Repo: promorepo.Provide(),
	})

	svc := &Service{
		log:           log,
		gateway:       gateway.NewClient(cfg, log),
		catalog:       plans,
		promos:        promos,
		ledger:        ledger,
		subscriptions: subs,
	}

	orgID := node.Generate()
	_, err = subs.CreateForOrg(context.Background(), orgID)
	require.NoError(t, err)

	return &fixture{
		svc: svc, ledger: ledger, subs: subs, promos: promos,
		stub: stub, node: node, orgID: orgID,
	}
}

func TestPreparePlanChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer, err := f.svc.PreparePlanChange(ctx, paymentdomain.PreparePlanChangeRequest{
		OrgID: f.orgID, TargetTier: plandomain.TierPremium, Currency: "ngn",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500000), offer.Amount)
	assert.Equal(t, "NGN", offer.Currency)
	assert.Equal(t, 6, offer.SubjectLimit)

	_, err = f.svc.PreparePlanChange(ctx, paymentdomain.PreparePlanChangeRequest{
		OrgID: f.orgID, TargetTier: plandomain.TierFree, Currency: "NGN",
	})
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlanTier)

	_, err = f.svc.PreparePlanChange(ctx, paymentdomain.PreparePlanChangeRequest{
		OrgID: f.orgID, TargetTier: plandomain.TierPremium, Currency: "EUR",
	})
	assert.ErrorIs(t, err, plandomain.ErrUnsupportedCurrency)
}

func TestPreparePlanChangeAlreadyOnPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CompletePlanChange(ctx, paymentdomain.CompletePlanChangeRequest{
		TransactionRef: "PSK_up_1", OrgID: f.orgID, MemberID: f.node.Generate(),
		TargetTier: plandomain.TierPremium, Currency: "NGN",
	})
	require.NoError(t, err)

	_, err = f.svc.PreparePlanChange(ctx, paymentdomain.PreparePlanChangeRequest{
		OrgID: f.orgID, TargetTier: plandomain.TierPremium, Currency: "NGN",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadyOnPlan)
}

func TestCompletePlanChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CompletePlanChange(ctx, paymentdomain.CompletePlanChangeRequest{
		TransactionRef: "PSK_up_2", OrgID: f.orgID, MemberID: f.node.Generate(),
		TargetTier: plandomain.TierPremium, AmountClaimed: 500000, Currency: "NGN",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "PSK_up_2", resp.TransactionID)
	assert.Equal(t, plandomain.TierPremium, resp.Subscription.PlanTier)
	require.NotNil(t, resp.Subscription.ExternalSubscriptionRef)
	assert.Equal(t, "AUTH_xyz", *resp.Subscription.ExternalSubscriptionRef)

	txn, err := f.ledger.Get(ctx, "PSK_up_2")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, transactiondomain.StatusSuccess, txn.Status)
}

func TestCompletePlanChangeAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The gateway reports a lower amount than the premium price.
	f.stub.amount = 100000

	_, err := f.svc.CompletePlanChange(ctx, paymentdomain.CompletePlanChangeRequest{
		TransactionRef: "PSK_short", OrgID: f.orgID, MemberID: f.node.Generate(),
		TargetTier: plandomain.TierPremium, AmountClaimed: 500000, Currency: "NGN",
	})
	require.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)

	// The attempt is on the ledger as failed and the subscription is untouched.
	txn, err := f.ledger.Get(ctx, "PSK_short")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, transactiondomain.StatusFailed, txn.Status)

	sub, err := f.subs.GetByOrgID(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierFree, sub.PlanTier)
}

func TestCompletePlanChangeVerificationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stub.fail = true

	_, err := f.svc.CompletePlanChange(ctx, paymentdomain.CompletePlanChangeRequest{
		TransactionRef: "PSK_bad", OrgID: f.orgID, MemberID: f.node.Generate(),
		TargetTier: plandomain.TierPremium, AmountClaimed: 500000, Currency: "NGN",
	})
	require.ErrorIs(t, err, paymentdomain.ErrVerificationFailed)

	txn, err := f.ledger.Get(ctx, "PSK_bad")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, transactiondomain.StatusFailed, txn.Status)
	assert.Contains(t, txn.GatewayResponse, "Transaction reference not found")
}

func TestCompletePlanChangeReplaysFromLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := paymentdomain.CompletePlanChangeRequest{
		TransactionRef: "PSK_up_3", OrgID: f.orgID, MemberID: f.node.Generate(),
		TargetTier: plandomain.TierPremium, AmountClaimed: 500000, Currency: "NGN",
	}
	_, err := f.svc.CompletePlanChange(ctx, req)
	require.NoError(t, err)
	verifyCalls := f.stub.calls.Load()

	// The retry must not touch the gateway again.
	resp, err := f.svc.CompletePlanChange(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, plandomain.TierPremium, resp.Subscription.PlanTier)
	assert.Equal(t, verifyCalls, f.stub.calls.Load())
}

func TestCompletePlanChangeWithPromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.promos.Create(ctx, promodomain.PromoCode{
		Code: "HALF", DiscountType: promodomain.DiscountPercentage, Value: 50, MaxUses: 1,
	})
	require.NoError(t, err)

	// The customer paid the discounted price and the gateway confirms it.
	f.stub.amount = 250000

	resp, err := f.svc.CompletePlanChange(ctx, paymentdomain.CompletePlanChangeRequest{
		TransactionRef: "PSK_promo", OrgID: f.orgID, MemberID: f.node.Generate(),
		TargetTier: plandomain.TierPremium, AmountClaimed: 250000, Currency: "NGN",
		PromoCode: "HALF",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(250000), resp.Subscription.Amount)

	promo, err := f.promos.Get(ctx, "HALF")
	require.NoError(t, err)
	assert.Equal(t, 1, promo.CurrentUses)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Reconcile(500000, paymentdomain.VerifiedPayment{AmountPaid: 500000})
	assert.NoError(t, err)

	err = f.svc.Reconcile(500000, paymentdomain.VerifiedPayment{AmountPaid: 500001})
	assert.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)
}
