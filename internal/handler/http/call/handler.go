package call

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/middleware"
	"learnhub-backend/internal/service/call"
	"learnhub-backend/pkg/response"
)

// Service is the call orchestration API served over REST
type Service interface {
	Initiate(ctx context.Context, input *call.InitiateCallInput) (*domain.CallResponse, error)
	UpdateStatus(ctx context.Context, input *call.UpdateStatusInput) (*domain.CallResponse, error)
	End(ctx context.Context, input *call.EndCallInput) (*domain.CallResponse, error)
	ToggleScreenShare(ctx context.Context, input *call.ScreenShareInput) (*domain.CallResponse, error)
	GetCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallResponse, error)
	GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CallResponse, error)
	GetActiveCalls(ctx context.Context, userID uuid.UUID) ([]*domain.CallResponse, error)
	Cleanup(ctx context.Context, userID uuid.UUID) (int64, error)
	GetHistoryMessages(ctx context.Context, userID, peerID uuid.UUID, limit int) ([]*domain.CallHistoryMessage, error)
}

// Handler handles call HTTP requests
type Handler struct {
	callService Service
}

// NewHandler creates a new call handler
func NewHandler(callService Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// RegisterRoutes mounts the call routes on an authenticated group.
// initiate may carry extra middleware such as a rate limiter.
func (h *Handler) RegisterRoutes(calls *gin.RouterGroup, initiate ...gin.HandlerFunc) {
	calls.POST("/initiate", append(initiate, h.InitiateCall)...)
	calls.GET("/history", h.GetHistory)
	calls.GET("/active", h.GetActiveCalls)
	calls.POST("/cleanup", h.Cleanup)
	calls.GET("/messages/:peer_id", h.GetHistoryMessages)
	calls.GET("/:id", h.GetCall)
	calls.PUT("/:id/status", h.UpdateStatus)
	calls.POST("/:id/end", h.EndCall)
	calls.PUT("/:id/screen-share", h.ToggleScreenShare)
}

// InitiateCallRequest represents call initiation request
type InitiateCallRequest struct {
	CalleeID string `json:"callee_id" binding:"required,uuid"`
	CallType string `json:"call_type" binding:"required,oneof=voice video"`
}

// InitiateCall starts a two-party call
// POST /v1/calls/initiate
func (h *Handler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	calleeID, err := uuid.Parse(req.CalleeID)
	if err != nil {
		response.ValidationError(c, "Invalid callee ID")
		return
	}

	output, err := h.callService.Initiate(c.Request.Context(), &call.InitiateCallInput{
		CallerID: callerID,
		CalleeID: calleeID,
		CallType: domain.CallType(req.CallType),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, output)
}

// UpdateStatusRequest represents a status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus moves a call to a new status
// PUT /v1/calls/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	output, err := h.callService.UpdateStatus(c.Request.Context(), &call.UpdateStatusInput{
		CallID: callID,
		UserID: userID,
		Status: domain.CallStatus(req.Status),
		Notify: true,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// EndCallRequest represents a hang-up with the client-measured duration
type EndCallRequest struct {
	Duration int `json:"duration" binding:"min=0"`
}

// EndCall hangs up a call
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	var req EndCallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	output, err := h.callService.End(c.Request.Context(), &call.EndCallInput{
		CallID:   callID,
		UserID:   userID,
		Duration: req.Duration,
		Notify:   true,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// ScreenShareRequest toggles screen sharing
type ScreenShareRequest struct {
	IsSharing *bool `json:"is_sharing" binding:"required"`
}

// ToggleScreenShare records a participant starting or stopping a screen share
// PUT /v1/calls/:id/screen-share
func (h *Handler) ToggleScreenShare(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	var req ScreenShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	output, err := h.callService.ToggleScreenShare(c.Request.Context(), &call.ScreenShareInput{
		CallID:    callID,
		UserID:    userID,
		IsSharing: *req.IsSharing,
		Notify:    true,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// GetCall returns one call
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	output, err := h.callService.GetCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// GetHistory returns the caller's calls, newest first
// GET /v1/calls/history?limit=20
func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	calls, err := h.callService.GetHistory(c.Request.Context(), userID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls": calls,
		"count": len(calls),
	})
}

// GetActiveCalls returns calls still occupying the user
// GET /v1/calls/active
func (h *Handler) GetActiveCalls(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	calls, err := h.callService.GetActiveCalls(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls": calls,
		"count": len(calls),
	})
}

// Cleanup marks the user's unanswered calls as missed
// POST /v1/calls/cleanup
func (h *Handler) Cleanup(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	count, err := h.callService.Cleanup(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"updated": count,
	})
}

// GetHistoryMessages returns the call history messages exchanged with a peer
// GET /v1/calls/messages/:peer_id?limit=20
func (h *Handler) GetHistoryMessages(c *gin.Context) {
	peerID, err := uuid.Parse(c.Param("peer_id"))
	if err != nil {
		response.ValidationError(c, "Invalid peer ID")
		return
	}

	userID, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}

	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	messages, err := h.callService.GetHistoryMessages(c.Request.Context(), userID, peerID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

func callIDParam(c *gin.Context) (uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, false
	}
	return callID, true
}

// limitQuery parses ?limit=; range clamping is left to the service
func limitQuery(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		response.ValidationError(c, "limit must be a number")
		return 0, false
	}
	return limit, true
}
