package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourname/timetracker/internal"
)

// Middleware validates the bearer token and stashes the resolved user in the
// gin context under "user".
func Middleware(provider Provider, remote bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			var user *internal.User
			var err error
			if remote {
				user, err = provider.ValidateTokenRemote(c.Request.Context(), token)
			} else {
				user, err = provider.ValidateTokenLocal(token)
			}
			if err == nil {
				c.Set("user", user)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}
