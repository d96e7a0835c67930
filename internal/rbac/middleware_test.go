package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"license-commerce/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, tenantID, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", tenantID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireTenant(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serve(t, "t", RoleSuperAdmin, RoleFinance); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_CustomerDeniedOnAdminRoutes(t *testing.T) {
	if code := serve(t, "t", RoleCustomer, AdminRoles...); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_AdminAllowed(t *testing.T) {
	if code := serve(t, "t", RoleAdmin, AdminRoles...); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireTenant_Required(t *testing.T) {
	if code := serve(t, "", RoleAdmin, AdminRoles...); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(RoleCustomer) || !IsValid(RoleFinance) || IsValid("owner") {
		t.Fatalf("unexpected role validation")
	}
}
