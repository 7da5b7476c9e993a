// Package push exposes device token registration for incoming call notifications.
package push

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/middleware"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/push"
	"learnhub-backend/pkg/response"
)

// TokenService registers device tokens for incoming call notifications
type TokenService interface {
	RegisterToken(ctx context.Context, token *push.Token) error
	UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error
}

type Handler struct {
	tokens TokenService
}

func NewHandler(tokens TokenService) *Handler {
	return &Handler{tokens: tokens}
}

// RegisterTokenRequest is the body of POST /v1/push/tokens
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required,max=4096"`
	Type     push.TokenType `json:"type" binding:"required,oneof=fcm apns"`
	DeviceID string         `json:"device_id" binding:"max=128"`
	Platform string         `json:"platform" binding:"omitempty,oneof=ios android"`
}

// RegisterToken stores (or reactivates) a device token of the caller.
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token := &push.Token{
		ID:       uuid.New(),
		UserID:   userID,
		Token:    strings.TrimSpace(req.Token),
		Type:     req.Type,
		DeviceID: req.DeviceID,
		Platform: req.Platform,
		Active:   true,
	}
	if err := h.tokens.RegisterToken(c.Request.Context(), token); err != nil {
		response.FromError(c, fmt.Errorf("register push token: %w", err))
		return
	}

	logger.FromContext(c.Request.Context()).Info("Push token registered",
		zap.String("token_type", string(req.Type)),
		zap.String("platform", req.Platform))

	response.Success(c, http.StatusCreated, gin.H{"token_id": token.ID})
}

// UnregisterTokenRequest is the body of DELETE /v1/push/tokens
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterToken removes a device token of the caller, typically on logout.
// DELETE /v1/push/tokens
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.tokens.UnregisterToken(c.Request.Context(), userID, strings.TrimSpace(req.Token)); err != nil {
		response.FromError(c, fmt.Errorf("unregister push token: %w", err))
		return
	}

	c.Status(http.StatusNoContent)
}
