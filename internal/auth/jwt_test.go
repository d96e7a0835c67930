package auth

import (
	"testing"
	"time"

	"license-commerce/internal/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "shop-1", "customer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "shop-1" || claims.Role != "customer" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	refresh, err := m.Verify(pair.RefreshToken, TokenTypeRefresh, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if refresh.Role != "customer" {
		t.Fatalf("refresh token must keep the role, got %q", refresh.Role)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "u", "t", "r")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})

	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "u", "t", "customer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(10*time.Minute)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	if _, err := other.Verify(p.AccessToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}
