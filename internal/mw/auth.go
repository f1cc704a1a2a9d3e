package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// AdminKey is the context key under which TokenAuth stores the username.
const AdminKey = "admin"

// TokenAuth guards admin routes with opaque bearer tokens. Tokens are issued
// by the login handler and live in an expiring in-memory store, so restarting
// the process logs everyone out.
func TokenAuth(tokens *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		username, found := tokens.Get(token)
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(AdminKey, username)
		c.Next()
	}
}
