package wallet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"license-commerce/internal/auth"
	"license-commerce/internal/rbac"

	"github.com/gin-gonic/gin"
)

type fakeWalletGetter struct {
	w   Wallet
	err error
}

func (f fakeWalletGetter) GetOrCreateWallet(ctx context.Context, tenantID, userID string) (Wallet, error) {
	return f.w, f.err
}

func runActiveWallet(t *testing.T, svc WalletGetter) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", "shop", rbac.RoleCustomer)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireActiveWallet(svc), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireActiveWallet_BlocksInactive(t *testing.T) {
	if code := runActiveWallet(t, fakeWalletGetter{w: Wallet{IsActive: false}}); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireActiveWallet_AllowsActive(t *testing.T) {
	if code := runActiveWallet(t, fakeWalletGetter{w: Wallet{IsActive: true}}); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireActiveWallet_LookupFailure(t *testing.T) {
	if code := runActiveWallet(t, fakeWalletGetter{err: errors.New("db down")}); code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
}
