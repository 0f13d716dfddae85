package server

import (
	"net/http"

	"github.com/classbill/classbill/internal/orgcontext"
	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	"github.com/gin-gonic/gin"
)

type planChangeRequest struct {
	Tier      string `json:"tier"`
	Currency  string `json:"currency"`
	PromoCode string `json:"promo_code"`
}

// PreparePlanChange validates the upgrade and returns the payload handed to
// the payment widget. No money moves here.
func (s *Server) PreparePlanChange(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	var req planChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tier, err := plandomain.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	offer, err := s.paymentSvc.PreparePlanChange(c.Request.Context(), paymentdomain.PreparePlanChangeRequest{
		OrgID:      orgID,
		TargetTier: tier,
		Currency:   req.Currency,
		PromoCode:  req.PromoCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

type completePaymentRequest struct {
	TransactionRef string `json:"transaction_ref"`
	OrgID          string `json:"org_id"`
	MemberID       string `json:"member_id"`
	Tier           string `json:"tier"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	PromoCode      string `json:"promo_code"`
}

func (s *Server) CompletePlanChange(c *gin.Context) {
	var req completePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, err := parseID(req.OrgID)
	if err != nil {
		AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization id"))
		return
	}
	memberID, err := parseID(req.MemberID)
	if err != nil {
		AbortWithError(c, newValidationError("member_id", "invalid_member", "invalid member id"))
		return
	}
	tier, err := plandomain.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.CompletePlanChange(c.Request.Context(), paymentdomain.CompletePlanChangeRequest{
		TransactionRef: req.TransactionRef,
		OrgID:          orgID,
		MemberID:       memberID,
		TargetTier:     tier,
		AmountClaimed:  req.Amount,
		Currency:       req.Currency,
		PromoCode:      req.PromoCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
