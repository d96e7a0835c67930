package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"license-commerce/internal/audit"
	"license-commerce/internal/auth"
	"license-commerce/internal/cart"
	"license-commerce/internal/catalog"
	"license-commerce/internal/checkout"
	"license-commerce/internal/config"
	"license-commerce/internal/httpapi"
	"license-commerce/internal/notify"
	"license-commerce/internal/ratelimit"
	"license-commerce/internal/reporting"
	"license-commerce/internal/wallet"
	"license-commerce/pkg/logger"
	"license-commerce/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var publisher notify.Publisher = notify.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := notify.ConnectNATS(cfg.NATS.URL, "license-commerce-api", log)
		if err != nil {
			log.Error("nats init failed", "err", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = nc
	} else {
		log.Warn("NATS_URL not set; order events are not published")
	}

	products := catalog.NewPostgresRepo(db)
	walletRepo := wallet.NewPostgresRepo(db, cfg.Ledger.TxRetryAttempts)
	wallets := wallet.NewService(walletRepo)
	carts := cart.NewService(
		cart.NewPostgresRepo(db, cfg.Ledger.TxRetryAttempts),
		products,
		cart.NewRedisCache(rdb, cfg.Cart.CacheTTL),
	)

	h := httpapi.Handlers{
		Auth:       authManager,
		Wallet:     wallets,
		Cart:       carts,
		Checkout:   checkout.NewService(carts, wallets, checkout.NewPostgresStore(db), publisher),
		Reports:    reporting.NewService(reporting.NewPostgresRepo(db)),
		Audit:      audit.NewService(audit.NewPostgresRepo(db)),
		AllowLogin: !cfg.IsProduction(),
	}
	limiter := ratelimit.New(rdb, cfg.HTTP.UserConcurrencyLimit, 0)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager), limiter, readiness{db: db, rdb: rdb})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           withCORS(r, cfg.HTTP.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// withCORS wraps the router; with no configured origins, cross-origin requests are refused.
func withCORS(h http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         600,
	}).Handler(h)
}
