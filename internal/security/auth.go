package security

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// ContextKeyClientID is the gin context key for the client a bearer token belongs to.
const ContextKeyClientID = "clientID"

// TokenAuthMiddleware accepts requests carrying "Authorization: Bearer <token>"
// where token is a key of tokens. With no tokens configured every request passes.
func TokenAuthMiddleware(tokens map[string]string) gin.HandlerFunc {
	if len(tokens) == 0 {
		log.Warn("No API tokens configured; conversation endpoints are unauthenticated")
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			log.Info("Auth rejected: missing Authorization header", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token == auth {
			log.Info("Auth rejected: expected Bearer token", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			return
		}

		clientID, ok := tokens[token]
		if !ok {
			log.Info("Auth rejected: unknown token", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			return
		}

		c.Set(ContextKeyClientID, clientID)
		c.Next()
	}
}

// GetClientID returns the authenticated client name from the gin context.
func GetClientID(c *gin.Context) string {
	return c.GetString(ContextKeyClientID)
}
