package ratelimit

import (
	"context"
	"net/http"
	"time"

	"license-commerce/internal/auth"
	"license-commerce/pkg/logger"
	"license-commerce/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// defaultTTL bounds how long a slot survives a crashed request.
const defaultTTL = 30 * time.Second

var rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ratelimit_rejected_total",
	Help: "Requests rejected by the per-user concurrency cap.",
}, []string{"scope"})

// Limiter caps in-flight requests per (tenant, user, scope) using Redis counters.
type Limiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func New(rdb *redis.Client, limit int, ttl time.Duration) *Limiter {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Limiter{rdb: rdb, limit: limit, ttl: ttl}
}

func key(scope, tenantID, userID string) string {
	return "cap:" + tenantID + ":" + userID + ":" + scope
}

// PerUser rejects with 429 when the caller already has limit requests of this scope in flight.
//
// Redis failures fail open: the ledger row lock still prevents double spends, the cap only
// protects the database from bursts.
func (l *Limiter) PerUser(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.rdb == nil || l.limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		tenantID, terr := auth.TenantID(ctx)
		userID, uerr := auth.UserID(ctx)
		if terr != nil || uerr != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		k := key(scope, tenantID, userID)
		ok, err := utils.AcquireConcurrencyCap(ctx, l.rdb, k, l.limit, l.ttl)
		if err != nil {
			logger.FromGin(c).Warn("concurrency cap unavailable", "scope", scope, "err", err)
			c.Next()
			return
		}
		if !ok {
			rejectedTotal.WithLabelValues(scope).Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent requests"})
			return
		}
		defer func() {
			// Release even if the client went away.
			if err := utils.ReleaseConcurrencyCap(context.WithoutCancel(ctx), l.rdb, k); err != nil {
				logger.FromGin(c).Warn("concurrency cap release failed", "scope", scope, "err", err)
			}
		}()
		c.Next()
	}
}
