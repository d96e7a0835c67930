package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"license-commerce/internal/config"
	"license-commerce/internal/db"
	"license-commerce/pkg/logger"
	"license-commerce/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// migrate applies the embedded schema migrations.
//
//	migrate            apply all pending migrations
//	migrate -down 1    roll back one migration
//	migrate -version   print the applied version
func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	version := flag.Bool("version", false, "print the applied schema version and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	conn, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	switch {
	case *version:
		v, dirty, err := db.Version(conn)
		if err != nil {
			log.Error("read schema version failed", "err", err)
			os.Exit(1)
		}
		log.Info("schema version", "version", v, "dirty", dirty)
	case *down > 0:
		if err := db.Down(conn, *down); err != nil {
			log.Error("rollback failed", "err", err)
			os.Exit(1)
		}
		log.Info("rolled back", "steps", *down)
	default:
		if err := db.Up(conn); err != nil {
			log.Error("migrate failed", "err", err)
			os.Exit(1)
		}
		log.Info("schema up to date")
	}
}
