package server

import (
	"net/http"
	"strconv"

	"github.com/classbill/classbill/internal/orgcontext"
	"github.com/gin-gonic/gin"
)

func (s *Server) AnalyticsSummary(c *gin.Context) {
	summary, err := s.analyticsSvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListLifecycleEvents(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	events, err := s.analyticsSvc.EventsForOrg(c.Request.Context(), orgID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
