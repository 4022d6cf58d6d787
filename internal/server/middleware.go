package server

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const tenantIDKey = "tenant_id"

// RequestLogger logs one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
			log.Warn("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// TenantRequired resolves the tenant from the X-Tenant-ID header, falling
// back to the configured default tenant when the header is absent.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Tenant-ID")
		if raw == "" {
			if s.cfg.DefaultTenantID == 0 {
				AbortWithError(c, newValidationError("tenant_id", "missing_tenant", "X-Tenant-ID header is required"))
				return
			}
			c.Set(tenantIDKey, snowflake.ID(s.cfg.DefaultTenantID))
			c.Next()
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id == 0 {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "X-Tenant-ID must be a nonzero integer"))
			return
		}
		c.Set(tenantIDKey, snowflake.ID(id))
		c.Next()
	}
}

func (s *Server) tenantID(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(tenantIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func parseID(raw string) (snowflake.ID, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return snowflake.ID(id), true
}
