package middleware

import (
	"crypto/rsa"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ETAnderson/pricetrail/internal/api/auth"
	"github.com/ETAnderson/pricetrail/internal/api/authctx"
)

// RequireOps guards mutating endpoints with an RS256 bearer token carrying
// the ops scope.
//
// In dev: if an Authorization header is present it must be valid, but a
// request without one passes through so local tooling keeps working.
func RequireOps(env string, pub *rsa.PublicKey) gin.HandlerFunc {
	isDev := strings.EqualFold(strings.TrimSpace(env), "dev")

	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))

		if header == "" {
			if isDev {
				c.Next()
				return
			}
			abortUnauthorized(c, "missing bearer token")
			return
		}

		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "authorization header is not a bearer token")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenString == "" {
			abortUnauthorized(c, "empty bearer token")
			return
		}

		claims, err := auth.ParseAndValidateRS256(tokenString, pub)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		if !claims.HasScope(auth.ScopeOps) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "ops scope required",
			})
			return
		}

		c.Request = c.Request.WithContext(authctx.WithSubject(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": msg,
	})
}
