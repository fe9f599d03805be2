package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/pulse/internal/auth"
)

// userIDKey is the gin context key the auth middleware stores the
// authenticated user id under.
const userIDKey = "userID"

// RequireAuth validates the bearer token and stores the user id in the
// request context
func RequireAuth(tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		userID, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUserID returns the authenticated user id set by RequireAuth
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
