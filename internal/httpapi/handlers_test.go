package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/internal/audit"
	"license-commerce/internal/auth"
	"license-commerce/internal/cart"
	"license-commerce/internal/catalog"
	"license-commerce/internal/checkout"
	"license-commerce/internal/config"
	"license-commerce/internal/notify"
	"license-commerce/internal/reporting"
	"license-commerce/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router *gin.Engine
	audit  *audit.MemoryRepo
	events *notify.Recorder
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	am, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTIssuer:       "license-commerce",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	products := catalog.NewMemoryRepo(
		catalog.Product{ID: "p1", TenantID: "shop", Name: "Office suite", Price: decimal.RequireFromString("30.00"), IsActive: true},
		catalog.Product{ID: "p2", TenantID: "shop", Name: "Legacy tool", Price: decimal.RequireFromString("5.00"), IsActive: false},
	)
	walletRepo := wallet.NewMemoryRepo()
	wallets := wallet.NewService(walletRepo)
	carts := cart.NewService(cart.NewMemoryRepo(products), products, nil)
	events := notify.NewRecorder()
	auditRepo := audit.NewMemoryRepo()

	h := Handlers{
		Auth:       am,
		Wallet:     wallets,
		Cart:       carts,
		Checkout:   checkout.NewService(carts, wallets, checkout.NewMemoryStore(), events),
		Reports:    reporting.NewService(reporting.NewMemoryRepo(walletRepo)),
		Audit:      audit.NewService(auditRepo),
		AllowLogin: true,
	}
	r := gin.New()
	Register(r.Group("/v1"), h, auth.RequireAccessToken(am), nil)
	return &testAPI{router: r, audit: auditRepo, events: events}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T, userID, role string) (access, refresh string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"user_id": userID, "tenant_id": "shop", "role": role})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.AccessToken, out.RefreshToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	admin, _ := api.login(t, "admin-1", "finance")
	customer, _ := api.login(t, "user-1", "customer")

	w := api.do(t, http.MethodPost, "/v1/admin/wallets/user-1/deposit", admin, gin.H{"amount": "50.00", "description": "bank transfer"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/v1/cart/items", customer, gin.H{"product_id": "p1", "quantity": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/v1/cart", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cartBody := decode[struct {
		ItemCount int    `json:"item_count"`
		Total     string `json:"total"`
	}](t, w)
	assert.Equal(t, 1, cartBody.ItemCount)
	assert.Equal(t, "30.00", cartBody.Total)

	w = api.do(t, http.MethodPost, "/v1/checkout", customer, gin.H{"note": "first order"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[checkout.Result](t, w)
	assert.Equal(t, checkout.OrderStatusPaid, res.Order.Status)
	assert.Equal(t, wallet.PaymentMethodDeposit, res.Payment.PaymentMethod)

	w = api.do(t, http.MethodGet, "/v1/orders/"+res.Order.ID, customer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/v1/wallet", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[struct {
		Balance struct {
			DepositBalance string `json:"deposit_balance"`
		} `json:"balance"`
	}](t, w)
	assert.Equal(t, "20.00", sum.Balance.DepositBalance)

	w = api.do(t, http.MethodGet, "/v1/cart", customer, nil)
	assert.Contains(t, w.Body.String(), `"item_count":0`)

	evs := api.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, notify.SubjectOrderPaid, evs[0].Subject)

	auditEvents := api.audit.Events()
	require.Len(t, auditEvents, 1)
	assert.Equal(t, "deposit", auditEvents[0].Action)
	assert.Equal(t, "admin-1", auditEvents[0].ActorUserID)
}

func TestCheckout_InsufficientFunds(t *testing.T) {
	api := newTestAPI(t)
	customer, _ := api.login(t, "user-1", "customer")

	w := api.do(t, http.MethodPost, "/v1/cart/items", customer, gin.H{"product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodPost, "/v1/checkout", customer, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), `"payment_failed"`)

	w = api.do(t, http.MethodGet, "/v1/cart", customer, nil)
	assert.Contains(t, w.Body.String(), `"item_count":2`)
}

func TestCheckout_EmptyCartIsBadRequest(t *testing.T) {
	api := newTestAPI(t)
	customer, _ := api.login(t, "user-1", "customer")

	w := api.do(t, http.MethodPost, "/v1/checkout", customer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_BlockedForInactiveWallet(t *testing.T) {
	api := newTestAPI(t)
	admin, _ := api.login(t, "admin-1", "admin")
	customer, _ := api.login(t, "user-1", "customer")

	w := api.do(t, http.MethodPost, "/v1/admin/wallets/user-1/deactivate", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/v1/checkout", customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCartErrors(t *testing.T) {
	api := newTestAPI(t)
	customer, _ := api.login(t, "user-1", "customer")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"zero quantity", http.MethodPost, "/v1/cart/items", gin.H{"product_id": "p1", "quantity": 0}, http.StatusBadRequest},
		{"unknown product", http.MethodPost, "/v1/cart/items", gin.H{"product_id": "nope", "quantity": 1}, http.StatusNotFound},
		{"inactive product", http.MethodPost, "/v1/cart/items", gin.H{"product_id": "p2", "quantity": 1}, http.StatusNotFound},
		{"update missing line", http.MethodPut, "/v1/cart/items/p1", gin.H{"quantity": 3}, http.StatusNotFound},
		{"remove missing line", http.MethodDelete, "/v1/cart/items/p1", nil, http.StatusNotFound},
		{"clear empty cart", http.MethodDelete, "/v1/cart", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, tc.method, tc.path, customer, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	api := newTestAPI(t)
	customer, _ := api.login(t, "user-1", "customer")

	w := api.do(t, http.MethodPost, "/v1/admin/wallets/user-1/deposit", customer, gin.H{"amount": "10"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodGet, "/v1/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRebuildAndReports(t *testing.T) {
	api := newTestAPI(t)
	admin, _ := api.login(t, "admin-1", "super_admin")
	customer, _ := api.login(t, "user-1", "customer")

	w := api.do(t, http.MethodPost, "/v1/cart/items", customer, gin.H{"product_id": "p1", "quantity": 3})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodPost, "/v1/admin/carts/user-1/rebuild", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"rows":1}`, w.Body.String())

	w = api.do(t, http.MethodGet, "/v1/admin/carts/user-1/events", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ITEM_ADDED"`)

	w = api.do(t, http.MethodPost, "/v1/admin/wallets/user-1/credit-limit", admin, gin.H{"credit_limit": "100.00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = api.do(t, http.MethodPost, "/v1/checkout", customer, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = api.do(t, http.MethodPost, "/v1/admin/wallets/user-1/credit-limit", admin, gin.H{"credit_limit": "50.00"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodGet, "/v1/admin/reports/overlimit", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	over := decode[struct {
		Wallets []reporting.OverlimitWallet `json:"wallets"`
	}](t, w)
	require.Len(t, over.Wallets, 1)
	assert.True(t, over.Wallets[0].Excess.Equal(decimal.RequireFromString("40")))

	w = api.do(t, http.MethodGet, "/v1/admin/reports/spend", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	spend := decode[reporting.SpendSummary](t, w)
	assert.Equal(t, 1, spend.PaymentCount)
	assert.True(t, spend.PaidFromCredit.Equal(decimal.RequireFromString("90")))

	w = api.do(t, http.MethodGet, "/v1/admin/reports/spend?from=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/v1/admin/wallets/user-1/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"consistent":true`)

	var rebuilds int
	for _, e := range api.audit.Events() {
		if e.Type == audit.EventTypeCartRebuild {
			rebuilds++
		}
	}
	assert.Equal(t, 1, rebuilds)
}

func TestRefreshKeepsIdentity(t *testing.T) {
	api := newTestAPI(t)
	_, refresh := api.login(t, "user-1", "customer")

	w := api.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pair := decode[struct {
		AccessToken string `json:"access_token"`
	}](t, w)

	w = api.do(t, http.MethodGet, "/v1/wallet", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens must not refresh")
}

func TestLoginDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r.Group("/v1"), Handlers{}, func(c *gin.Context) { c.Next() }, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRespondErrorKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.NotFound("thing"), http.StatusNotFound},
		{apperr.FromStore("op", errors.Join(apperr.ErrConflict, errors.New("40001"))), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tc.err)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}
