package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"license-commerce/pkg/logger"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// RequireAccessToken authenticates the caller from an access token and puts the
// (user, tenant, role) identity on the request context and on the gin context.
// Role checks are left to rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		tok, ok := strings.CutPrefix(raw, bearerPrefix)
		if !ok || strings.TrimSpace(tok) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(strings.TrimSpace(tok), TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Debug("access token rejected", "err", err)
			msg := "invalid token"
			if errors.Is(err, ErrNoTenant) {
				msg = "token is not bound to a tenant"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID, claims.TenantID, claims.Role))
		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)
		c.Set("role", claims.Role)
		c.Next()
	}
}
