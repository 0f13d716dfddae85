package server

import (
	"net/http"
	"time"

	promodomain "github.com/classbill/classbill/internal/promo/domain"
	"github.com/gin-gonic/gin"
)

type createPromoRequest struct {
	Code         string     `json:"code"`
	DiscountType string     `json:"discount_type"`
	Value        int64      `json:"value"`
	Currency     string     `json:"currency"`
	MaxUses      int        `json:"max_uses"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

func (s *Server) CreatePromoCode(c *gin.Context) {
	var req createPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	promo, err := s.promoSvc.Create(c.Request.Context(), promodomain.PromoCode{
		Code:         req.Code,
		DiscountType: promodomain.DiscountType(req.DiscountType),
		Value:        req.Value,
		Currency:     req.Currency,
		MaxUses:      req.MaxUses,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promo)
}

func (s *Server) GetPromoCode(c *gin.Context) {
	promo, err := s.promoSvc.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, promo)
}
