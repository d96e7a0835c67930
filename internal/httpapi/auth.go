package httpapi

import (
	"net/http"

	"license-commerce/internal/auth"
	"license-commerce/internal/rbac"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func tokenResponse(pair auth.TokenPair) gin.H {
	return gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken, "token_type": "Bearer"}
}

// Login issues a JWT token pair without checking credentials.
// Only registered outside production; a real deployment fronts this with an identity provider.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || !h.AllowLogin {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	if !rbac.IsValid(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Refresh exchanges a refresh token for a new pair carrying the same identity.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	now := h.now()
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, now)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	pair, err := h.Auth.IssuePair(now, claims.UserID, claims.TenantID, claims.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}
