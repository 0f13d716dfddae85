package server

import (
	"net/http"

	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	"github.com/classbill/classbill/internal/orgcontext"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateOrganization(c *gin.Context) {
	var req organizationdomain.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetOrganization(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	org, err := s.organizationSvc.GetByID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) AddMember(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.organizationSvc.AddMember(c.Request.Context(), organizationdomain.AddMemberRequest{
		OrgID: orgID,
		Email: req.Email,
		Role:  organizationdomain.MemberRole(req.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *Server) RemoveMember(c *gin.Context) {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())
	memberID, err := parseID(c.Param("member_id"))
	if err != nil {
		AbortWithError(c, newValidationError("member_id", "invalid_member", "invalid member id"))
		return
	}

	if err := s.organizationSvc.RemoveMember(c.Request.Context(), orgID, memberID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
