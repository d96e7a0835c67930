package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"license-commerce/internal/httpapi"
	"license-commerce/internal/ratelimit"
	"license-commerce/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// readiness reports whether the stores the API depends on are reachable.
type readiness struct {
	db  *sql.DB
	rdb *redis.Client
}

func (rd readiness) check(ctx context.Context) map[string]string {
	out := map[string]string{"postgres": "ok", "redis": "ok"}
	if err := utils.HealthCheck(ctx, rd.db, 2*time.Second); err != nil {
		out["postgres"] = "down"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rd.rdb.Ping(pingCtx).Err(); err != nil {
		out["redis"] = "down"
	}
	return out
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, limiter *ratelimit.Limiter, rd readiness) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		deps := rd.check(c.Request.Context())
		status := http.StatusOK
		for _, v := range deps {
			if v != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "deps": deps})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpapi.Register(r.Group("/v1"), h, authMW, limiter)
}
