package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const clientIDKey = "client_id"

// Auth returns a Bearer API-key middleware. An empty key disables the
// check entirely; /health stays reachable either way. The middleware
// also derives the rate-limit client identity: an explicit X-Client-ID
// header when present, the client IP otherwise.
func Auth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(clientIDKey, clientIdentity(c))

		if c.Request.URL.Path == "/health" || apiKey == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header || token != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing API key",
			})
			return
		}

		c.Next()
	}
}

func clientIdentity(c *gin.Context) string {
	if id := c.GetHeader("X-Client-ID"); id != "" {
		return id
	}
	return c.ClientIP()
}

// ClientID returns the rate-limit identity derived by Auth
func ClientID(c *gin.Context) string {
	if id, ok := c.Get(clientIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return c.ClientIP()
}
