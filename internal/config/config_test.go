package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "commerce"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.HTTP.CORSAllowedOrigins = []string{"https://shop.example.com"}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Cart.CacheTTL != 15*time.Minute {
		t.Fatalf("expected 15m cart cache ttl, got %s", c.Cart.CacheTTL)
	}
	if c.Ledger.TxRetryAttempts != 3 || c.HTTP.UserConcurrencyLimit != 2 {
		t.Fatalf("unexpected defaults: %+v %+v", c.Ledger, c.HTTP)
	}
}

func TestValidate_RejectsNegativeLimits(t *testing.T) {
	c := validLocal()
	c.HTTP.UserConcurrencyLimit = -1
	c.Ledger.TxRetryAttempts = -1
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "USER_CONCURRENCY_LIMIT") || !strings.Contains(err.Error(), "TX_RETRY_ATTEMPTS") {
		t.Fatalf("expected both keys reported, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "commerce")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("CART_CACHE_TTL", "5m")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9090" || c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected addrs %q %q", c.HTTPAddr(), c.RedisAddr())
	}
	if len(c.HTTP.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", c.HTTP.CORSAllowedOrigins)
	}
	if c.Cart.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", c.Cart.CacheTTL)
	}
	if got := c.PostgresDSN(); !strings.Contains(got, "host=db port=5432 user=app") {
		t.Fatalf("unexpected dsn %q", got)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("NATS_URL=nats://from-file:4222\nJWT_ISSUER=file-issuer\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("JWT_ISSUER", "env-issuer")
	t.Setenv("NATS_URL", "")
	os.Unsetenv("NATS_URL")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if os.Getenv("JWT_ISSUER") != "env-issuer" {
		t.Fatalf("existing env must win, got %q", os.Getenv("JWT_ISSUER"))
	}
	if os.Getenv("NATS_URL") != "nats://from-file:4222" {
		t.Fatalf("expected value from file, got %q", os.Getenv("NATS_URL"))
	}
}
