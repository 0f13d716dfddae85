package server

import (
	"net/http"

	"github.com/classbill/classbill/internal/orgcontext"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetSubscription(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	sub, err := s.subscriptionSvc.GetByOrgID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// DowngradeSubscription is the privileged manual grace-to-free transition.
// The subscription service enforces the caller's role.
func (s *Server) DowngradeSubscription(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	sub, err := s.subscriptionSvc.ManualDowngrade(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
