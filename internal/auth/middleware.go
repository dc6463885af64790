package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

// PrincipalKey is the gin context key holding the resolved rbac.Principal.
const PrincipalKey = "principal"

type Middleware struct {
	service Service
}

func NewMiddleware(service Service) *Middleware {
	return &Middleware{service: service}
}

// RequirePrincipal validates the bearer token and resolves the full
// principal, including profile and role, from current storage state. Every
// downstream authorization decision starts from this snapshot.
func (m *Middleware) RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := m.service.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		principal, err := m.service.Principal(c.Request.Context(), claims.PrincipalID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown principal"})
			return
		}
		if !principal.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// PrincipalFrom extracts the resolved principal from the request context.
func PrincipalFrom(c *gin.Context) (rbac.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return rbac.Principal{}, false
	}
	p, ok := v.(rbac.Principal)
	return p, ok
}
