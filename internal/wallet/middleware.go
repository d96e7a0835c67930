package wallet

import (
	"context"
	"net/http"

	"license-commerce/internal/auth"

	"github.com/gin-gonic/gin"
)

// WalletGetter is the minimal wallet service interface needed by middleware.
type WalletGetter interface {
	GetOrCreateWallet(ctx context.Context, tenantID, userID string) (Wallet, error)
}

// RequireActiveWallet blocks customer money routes for soft-deactivated wallets.
//
// It reads tenant_id and user_id from the auth context, so it must run after
// auth.RequireAccessToken. The service re-checks under the row lock; this only
// rejects early with a clearer status.
func RequireActiveWallet(svc WalletGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tenantID, err := auth.TenantID(ctx)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
			return
		}
		userID, err := auth.UserID(ctx)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		w, err := svc.GetOrCreateWallet(ctx, tenantID, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet lookup failed"})
			return
		}
		if !w.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "wallet is inactive"})
			return
		}

		c.Next()
	}
}
