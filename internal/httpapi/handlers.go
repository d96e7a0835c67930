package httpapi

import (
	"errors"
	"net/http"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/internal/audit"
	"license-commerce/internal/auth"
	"license-commerce/internal/cart"
	"license-commerce/internal/checkout"
	"license-commerce/internal/reporting"
	"license-commerce/internal/wallet"
	"license-commerce/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Wallet   *wallet.Service
	Cart     *cart.Service
	Checkout *checkout.Service
	Reports  *reporting.Service
	Audit    *audit.Service

	// AllowLogin enables the credential-less login endpoint. Never set in production.
	AllowLogin bool
	// Now is injectable for deterministic token tests.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type caller struct {
	tenantID string
	userID   string
	role     string
}

func (c caller) actor(ip string) audit.Actor {
	return audit.Actor{UserID: c.userID, Role: c.role, IP: ip}
}

// identity reads the authenticated caller; it aborts with 401 when any part is missing.
func identity(c *gin.Context) (caller, bool) {
	ctx := c.Request.Context()
	tid, terr := auth.TenantID(ctx)
	uid, uerr := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	if terr != nil || uerr != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return caller{}, false
	}
	return caller{tenantID: tid, userID: uid, role: role}, true
}

// respondError maps error kinds to status codes. Persistence details are logged, never returned.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "concurrent update, retry"})
	default:
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badJSON(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
}
