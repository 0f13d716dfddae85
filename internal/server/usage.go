package server

import (
	"net/http"

	"github.com/classbill/classbill/internal/orgcontext"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	usagedomain "github.com/classbill/classbill/internal/usage/domain"
	"github.com/gin-gonic/gin"
)

type mutateUsageRequest struct {
	Resource string `json:"resource"`
	Op       string `json:"op"`
}

// MutateUsage registers or releases one unit of a resource for a member.
// Register performs the limit check; remove refuses to go below zero.
func (s *Server) MutateUsage(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	memberID, err := parseID(c.Param("member_id"))
	if err != nil {
		AbortWithError(c, newValidationError("member_id", "invalid_member", "invalid member id"))
		return
	}

	var req mutateUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resource, ok := subscriptiondomain.ParseResourceKind(req.Resource)
	if !ok {
		AbortWithError(c, usagedomain.ErrInvalidResource)
		return
	}

	switch req.Op {
	case "add", "":
		stats, err := s.usageSvc.Register(ctx, orgID, memberID, resource)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	case "remove":
		if err := s.usageSvc.Decrement(ctx, orgID, memberID, resource); err != nil {
			AbortWithError(c, err)
			return
		}
		stats, err := s.usageSvc.Stats(ctx, orgID, resource)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	default:
		AbortWithError(c, newValidationError("op", "invalid_op", "op must be add or remove"))
	}
}

func (s *Server) UsageStats(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, _ := orgcontext.OrgIDFromContext(ctx)

	var stats []usagedomain.Stats
	for _, resource := range []subscriptiondomain.ResourceKind{
		subscriptiondomain.ResourceSubject,
		subscriptiondomain.ResourceStudent,
	} {
		st, err := s.usageSvc.Stats(ctx, orgID, resource)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		stats = append(stats, st)
	}
	c.JSON(http.StatusOK, gin.H{"usage": stats})
}
