package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/creatorlive/broadcaster/pkg/response"
)

// ControlToken guards the local control API with a static bearer token.
// An empty token disables the check (local-only deployments).
func ControlToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		got := strings.TrimPrefix(header, "Bearer ")
		if got == header || got != token {
			response.Unauthorized(c, "invalid control token")
			c.Abort()
			return
		}
		c.Next()
	}
}
