package server

import (
	"net/http"

	"github.com/classbill/classbill/internal/orgcontext"
	"github.com/gin-gonic/gin"
)

// ListTransactions returns the organization's payment history newest first,
// including entries filed under legacy owner keys.
func (s *Server) ListTransactions(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	txns, err := s.transactionSvc.History(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}
