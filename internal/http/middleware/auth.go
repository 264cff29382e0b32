// README: Bearer token auth; resolves the caller identity through the configured verifier.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campuspool/internal/infra"
	"campuspool/internal/types"
)

const callerKey = "campuspool.caller"

func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "unauthenticated"})
			return
		}
		caller, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "unauthenticated"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// Caller returns the identity set by Auth. ok is false on unauthenticated routes.
func Caller(c *gin.Context) (types.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return types.Caller{}, false
	}
	caller, ok := v.(types.Caller)
	return caller, ok
}

func CallerUID(c *gin.Context) string {
	caller, _ := Caller(c)
	return string(caller.ID)
}

func CallerRole(c *gin.Context) types.Role {
	caller, _ := Caller(c)
	return caller.Role
}
