package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"session-plane/backend/internal/ratelimit"
)

// RateLimit enforces a per-client-IP request cap per minute on the routes it
// wraps. Limiter errors fail open and are logged; a Redis outage must not
// block logins.
func RateLimit(limiter ratelimit.Limiter, perMinute int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:auth:" + c.ClientIP()
		ok, err := limiter.Allow(c.Request.Context(), key, perMinute, time.Minute)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}
