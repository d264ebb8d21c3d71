package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/chronos/pkg/middleware/requestid"
)

// Audit logs an audit entry for every successful calendar mutation.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		subject := ""
		if claims := Claims(c); claims != nil {
			subject = claims.Subject
		}
		logger.Sugar().Infow("audit",
			"action", action,
			"subject", subject,
			"path", c.FullPath(),
			"method", c.Request.Method,
			"status", c.Writer.Status(),
			"provider", c.Param("provider"),
			"event_id", c.Param("id"),
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"request_id", requestid.Value(c),
		)
	}
}
