package middleware

import (
	"net/http"
	"strings"

	"marketplace-auth/internal/auth/token"

	"github.com/gin-gonic/gin"
)

const claimsContextKey = "auth.claims"

// RequireAuth verifies the Authorization bearer token and attaches its
// claims to the request context. Verification is purely signature +
// expiry; no server-side session state exists.
func RequireAuth(signer *token.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := signer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the verified token claims attached by
// RequireAuth.
func ClaimsFromContext(c *gin.Context) (*token.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok
}
