package server

import (
	"net/http"

	plandomain "github.com/classbill/classbill/internal/plan/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": s.catalog.All()})
}

func (s *Server) GetPlan(c *gin.Context) {
	tier, err := plandomain.ParseTier(c.Param("tier"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan, err := s.catalog.Resolve(tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}
