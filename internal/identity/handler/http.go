// Package handler exposes the auth service over HTTP.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"session-plane/backend/internal/identity/service"
	"session-plane/backend/internal/server/middleware"
)

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	svc    *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler returns an AuthHandler. logger may be nil.
func NewAuthHandler(svc *service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the auth endpoints on the given router group.
func (h *AuthHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	user, err := h.svc.Register(c.Request.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"user_id": user.ID,
			"email":   user.Email,
		})
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.internal(c, "register failed", err)
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password,
		req.DeviceID, c.Request.UserAgent(), c.ClientIP())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, tokenResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			TokenType:    "Bearer",
			ExpiresAt:    res.ExpiresAt,
			SessionID:    res.SessionID,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	default:
		h.internal(c, "login failed", err)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	res, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, tokenResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			TokenType:    "Bearer",
			ExpiresAt:    res.ExpiresAt,
			SessionID:    res.SessionID,
		})
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrSessionRevoked):
		// One opaque body for every rejection so callers cannot probe token
		// state. The specific cause goes to the log only.
		h.logger.Info("refresh rejected",
			zap.String("reason", err.Error()),
			zap.String("correlation_id", middleware.GetCorrelationID(c.Request.Context())),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required, please log in again"})
	default:
		h.internal(c, "refresh failed", err)
	}
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.svc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.internal(c, "logout failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) internal(c *gin.Context, msg string, err error) {
	h.logger.Error(msg,
		zap.Error(err),
		zap.String("correlation_id", middleware.GetCorrelationID(c.Request.Context())),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
