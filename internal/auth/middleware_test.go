package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"license-commerce/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "secret"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{JWTSecret: testSecret, AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

// call runs one request through RequireAccessToken and returns the status and the
// tenant the handler saw.
func call(t *testing.T, m *Manager, header string) (int, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seenTenant string
	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		seenTenant, _ = TenantID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)

	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, seenTenant, body.Error
}

func TestRequireAccessToken_PutsIdentityOnContext(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.IssuePair(time.Now(), "user-1", "shop-1", "customer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	code, tenant, _ := call(t, m, "Bearer "+pair.AccessToken)
	if code != http.StatusOK || tenant != "shop-1" {
		t.Fatalf("expected 200 for shop-1, got %d tenant=%q", code, tenant)
	}
}

func TestRequireAccessToken_RejectsTokenWithoutTenant(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		UserID:    "user-1",
		Role:      "admin",
		TokenType: TokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	code, tenant, msg := call(t, m, "Bearer "+signed)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if tenant != "" {
		t.Fatalf("handler must not run, saw tenant %q", tenant)
	}
	if msg != "token is not bound to a tenant" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestRequireAccessToken_RejectsMissingAndRefreshTokens(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.IssuePair(time.Now(), "user-1", "shop-1", "customer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for name, header := range map[string]string{
		"no header":     "",
		"empty bearer":  "Bearer ",
		"basic auth":    "Basic dXNlcjpwYXNz",
		"refresh token": "Bearer " + pair.RefreshToken,
	} {
		if code, _, _ := call(t, m, header); code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, code)
		}
	}
}
