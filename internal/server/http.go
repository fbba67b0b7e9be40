// Package server wires the HTTP router: middleware chain, health endpoint,
// and the auth and session routes.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	identityhandler "session-plane/backend/internal/identity/handler"
	identityservice "session-plane/backend/internal/identity/service"
	"session-plane/backend/internal/ratelimit"
	"session-plane/backend/internal/server/middleware"
	sessionhandler "session-plane/backend/internal/session/handler"
)

// Pinger reports backend liveness for the readiness probe (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps holds the dependencies for building the router.
type Deps struct {
	// Auth is the auth service backing /v1/auth and /v1/sessions.
	Auth *identityservice.AuthService
	// Limiter guards the auth endpoints. Nil disables rate limiting.
	Limiter ratelimit.Limiter
	// RateLimitPerMinute is the per-IP cap on auth requests. 0 disables.
	RateLimitPerMinute int
	// Pinger is checked by /healthz. Nil skips the DB check.
	Pinger Pinger
	// Logger for the request log and handlers. Nil falls back to a nop logger.
	Logger *zap.Logger
}

// NewRouter builds the gin engine with the full middleware chain.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(
		middleware.Recovery(logger),
		middleware.Correlation(),
		middleware.Logging(logger),
	)

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Pinger != nil {
			if err := deps.Pinger.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/v1/auth")
	if deps.Limiter != nil && deps.RateLimitPerMinute > 0 {
		auth.Use(middleware.RateLimit(deps.Limiter, deps.RateLimitPerMinute, logger))
	}
	identityhandler.NewAuthHandler(deps.Auth, logger).RegisterRoutes(auth)

	sessions := r.Group("/v1/sessions")
	sessionhandler.NewSessionHandler(deps.Auth, logger).RegisterRoutes(sessions)

	return r
}
