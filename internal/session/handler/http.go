// Package handler exposes administrative session operations over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"session-plane/backend/internal/identity/service"
	sessiondomain "session-plane/backend/internal/session/domain"
)

// SessionHandler serves the admin session endpoints.
type SessionHandler struct {
	svc    *service.AuthService
	logger *zap.Logger
}

// NewSessionHandler returns a SessionHandler. logger may be nil.
func NewSessionHandler(svc *service.AuthService, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the session endpoints on the given router group.
func (h *SessionHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/:id/revoke", h.revoke)
}

// revoke revokes a session and all its refresh tokens. Idempotent; revoking
// an unknown or already-revoked session still returns 204.
func (h *SessionHandler) revoke(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	if err := h.svc.RevokeSession(c.Request.Context(), id, sessiondomain.RevokeReasonAdmin); err != nil {
		h.logger.Error("revoke session failed", zap.String("session_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}
