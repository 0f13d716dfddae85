package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	promodomain "github.com/classbill/classbill/internal/promo/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log *zap.Logger

	gateway       paymentdomain.Gateway
	catalog       plandomain.Catalog
	promos        promodomain.Service
	ledger        transactiondomain.Service
	subscriptions subscriptiondomain.Service
}

type ServiceParam struct {
	fx.In

	Log           *zap.Logger
	Gateway       paymentdomain.Gateway
	Catalog       plandomain.Catalog
	Promos        promodomain.Service
	Ledger        transactiondomain.Service
	Subscriptions subscriptiondomain.Service
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		log: p.Log.Named("payment.service"),

		gateway:       p.Gateway,
		catalog:       p.Catalog,
		promos:        p.Promos,
		ledger:        p.Ledger,
		subscriptions: p.Subscriptions,
	}
}

// PreparePlanChange implements domain.Service.
func (s *Service) PreparePlanChange(ctx context.Context, req paymentdomain.PreparePlanChangeRequest) (paymentdomain.PlanChangeOffer, error) {
	if req.OrgID == 0 {
		return paymentdomain.PlanChangeOffer{}, subscriptiondomain.ErrInvalidOrganization
	}
	plan, err := s.catalog.Resolve(req.TargetTier)
	if err != nil {
		return paymentdomain.PlanChangeOffer{}, err
	}
	if !req.TargetTier.IsPaid() {
		return paymentdomain.PlanChangeOffer{}, plandomain.ErrInvalidPlanTier
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	amount, ok := plan.Price(currency)
	if !ok {
		return paymentdomain.PlanChangeOffer{}, plandomain.ErrUnsupportedCurrency
	}

	sub, err := s.subscriptions.GetByOrgID(ctx, req.OrgID)
	if err != nil {
		return paymentdomain.PlanChangeOffer{}, err
	}
	if sub.PlanTier == req.TargetTier && sub.Status == subscriptiondomain.StatusActive {
		return paymentdomain.PlanChangeOffer{}, subscriptiondomain.ErrAlreadyOnPlan
	}

	if req.PromoCode != "" {
		amount, err = s.promos.Preview(ctx, req.PromoCode, amount, currency)
		if err != nil {
			return paymentdomain.PlanChangeOffer{}, err
		}
	}

	return paymentdomain.PlanChangeOffer{
		Tier:         plan.Tier,
		Name:         plan.Name,
		Amount:       amount,
		Currency:     currency,
		Features:     plan.Features,
		SubjectLimit: plan.SubjectLimit.Resolve(),
		StudentLimit: plan.StudentLimit.Resolve(),
	}, nil
}

// CompletePlanChange implements domain.Service.
func (s *Service) CompletePlanChange(ctx context.Context, req paymentdomain.CompletePlanChangeRequest) (paymentdomain.CompletePlanChangeResponse, error) {
	reference := strings.TrimSpace(req.TransactionRef)
	if reference == "" {
		return paymentdomain.CompletePlanChangeResponse{}, transactiondomain.ErrInvalidReference
	}
	if req.OrgID == 0 {
		return paymentdomain.CompletePlanChangeResponse{}, subscriptiondomain.ErrInvalidOrganization
	}

	// A reference already settled as success skips the gateway entirely; the
	// previous attempt charged the customer and only the subscription update
	// may still be outstanding.
	if existing, err := s.ledger.Get(ctx, reference); err != nil {
		return paymentdomain.CompletePlanChangeResponse{}, err
	} else if existing != nil && existing.Status == transactiondomain.StatusSuccess {
		sub, err := s.subscriptions.ApplyPaidPlan(ctx, subscriptiondomain.ApplyPaidPlanRequest{
			OrgID:    existing.OrgID,
			Tier:     existing.PlanTier,
			Amount:   existing.Amount,
			Currency: existing.Currency,
		})
		if err != nil {
			return paymentdomain.CompletePlanChangeResponse{}, err
		}
		s.log.Info("plan change replayed from ledger", zap.String("reference", reference))
		return paymentdomain.CompletePlanChangeResponse{
			Success:       true,
			TransactionID: existing.ID,
			Subscription:  sub,
		}, nil
	}

	plan, err := s.catalog.Resolve(req.TargetTier)
	if err != nil {
		return paymentdomain.CompletePlanChangeResponse{}, err
	}
	if !req.TargetTier.IsPaid() {
		return paymentdomain.CompletePlanChangeResponse{}, plandomain.ErrInvalidPlanTier
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	expected, ok := plan.Price(currency)
	if !ok {
		return paymentdomain.CompletePlanChangeResponse{}, plandomain.ErrUnsupportedCurrency
	}

	verified, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.recordFailure(ctx, req, currency, expected, err)
		return paymentdomain.CompletePlanChangeResponse{}, err
	}

	if req.PromoCode != "" {
		expected, err = s.promos.Redeem(ctx, req.PromoCode, expected, currency)
		if err != nil {
			s.recordFailure(ctx, req, currency, expected, err)
			return paymentdomain.CompletePlanChangeResponse{}, err
		}
	}

	if err := s.Reconcile(expected, verified); err != nil {
		s.log.Warn("payment reconciliation failed",
			zap.String("reference", reference),
			zap.Int64("expected", expected),
			zap.Int64("paid", verified.AmountPaid),
		)
		s.recordFailure(ctx, req, currency, expected, err)
		return paymentdomain.CompletePlanChangeResponse{}, err
	}

	recorded, err := s.ledger.Record(ctx, transactiondomain.Transaction{
		ID:              reference,
		OrgID:           req.OrgID,
		InitiatedBy:     req.MemberID,
		PlanTier:        req.TargetTier,
		Amount:          verified.AmountPaid,
		Currency:        verified.Currency,
		Status:          transactiondomain.StatusSuccess,
		GatewayResponse: verified.GatewayMessage,
	})
	if err != nil {
		return paymentdomain.CompletePlanChangeResponse{}, err
	}

	applyReq := subscriptiondomain.ApplyPaidPlanRequest{
		OrgID:    req.OrgID,
		Tier:     req.TargetTier,
		Amount:   verified.AmountPaid,
		Currency: verified.Currency,
	}
	if verified.CustomerRef != "" {
		applyReq.ExternalCustomerRef = &verified.CustomerRef
	}
	if verified.AuthorizationRef != "" {
		applyReq.ExternalSubscriptionRef = &verified.AuthorizationRef
	}
	sub, err := s.subscriptions.ApplyPaidPlan(ctx, applyReq)
	if err != nil {
		// The ledger already holds the success row; a retry with the same
		// reference replays the subscription update without re-charging.
		return paymentdomain.CompletePlanChangeResponse{}, err
	}

	s.log.Info("plan change completed",
		zap.String("reference", reference),
		zap.Int64("org_id", int64(req.OrgID)),
		zap.String("tier", string(req.TargetTier)),
		zap.Int64("amount", verified.AmountPaid),
	)
	return paymentdomain.CompletePlanChangeResponse{
		Success:       true,
		TransactionID: recorded.ID,
		Subscription:  sub,
	}, nil
}

// Reconcile implements domain.Service. Amounts are minor units, so the
// comparison is exact.
func (s *Service) Reconcile(expected int64, verified paymentdomain.VerifiedPayment) error {
	if verified.AmountPaid != expected {
		return fmt.Errorf("%w: expected %d, paid %d", paymentdomain.ErrAmountMismatch, expected, verified.AmountPaid)
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, req paymentdomain.CompletePlanChangeRequest, currency string, expected int64, cause error) {
	amount := req.AmountClaimed
	if amount == 0 {
		amount = expected
	}
	_, err := s.ledger.Record(ctx, transactiondomain.Transaction{
		ID:              strings.TrimSpace(req.TransactionRef),
		OrgID:           req.OrgID,
		InitiatedBy:     req.MemberID,
		PlanTier:        req.TargetTier,
		Amount:          amount,
		Currency:        currency,
		Status:          transactiondomain.StatusFailed,
		GatewayResponse: cause.Error(),
	})
	if err != nil && !errors.Is(err, transactiondomain.ErrInvalidReference) {
		s.log.Error("recording failed transaction", zap.String("reference", req.TransactionRef), zap.Error(err))
	}
}
