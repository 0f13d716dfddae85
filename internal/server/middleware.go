package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/classbill/classbill/internal/orgcontext"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderMemberID = "X-Member-ID"
	HeaderRole     = "X-Member-Role"
)

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
			log.Warn("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// OrgContext parses the :org_id path parameter and stores it on the request
// context for the service layer.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := parseID(c.Param("org_id"))
		if err != nil || orgID == 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization id"))
			return
		}
		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorContext resolves the calling member from headers. Authentication is
// delegated to the fronting gateway; the headers identify an already
// authenticated member.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderMemberID))
		if rawID == "" {
			c.Next()
			return
		}
		memberID, err := parseID(rawID)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		role := strings.TrimSpace(c.GetHeader(HeaderRole))
		ctx := orgcontext.WithActor(c.Request.Context(), orgcontext.Actor{
			MemberID: memberID,
			Role:     role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseID(raw string) (snowflake.ID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return snowflake.ID(v), nil
}
