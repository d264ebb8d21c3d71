package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/chronos/internal/service"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/response"
)

// RequireScope rejects callers whose token lacks scope. Must run after JWT.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !service.HasScope(claims, scope) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token lacks the "+scope+" scope"))
			c.Abort()
			return
		}
		c.Next()
	}
}
