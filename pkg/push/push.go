// Package push delivers device notifications through FCM or APNs.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
	"learnhub-backend/pkg/resilience"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Category string            `json:"category,omitempty"`
	// TTL drops the notification once the call it announces can no longer be answered
	TTL time.Duration `json:"-"`
	// CollapseKey lets a newer notification replace an undelivered one
	CollapseKey string `json:"-"`
}

// IncomingCall contains data for the incoming call notification
type IncomingCall struct {
	CallID      uuid.UUID
	CallerID    uuid.UUID
	CallerName  string
	CallType    string
	ChannelName string
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
)

// Valid reports whether t is a supported token type
func (t TokenType) Valid() bool {
	return t == TokenTypeFCM || t == TokenTypeAPNs
}

// Token represents a push notification token for a user
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	Platform  string    `json:"platform,omitempty"` // ios, android
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// TokenRepository defines interface for storing and retrieving push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	GetByToken(ctx context.Context, token string) (*Token, error)
	Update(ctx context.Context, token *Token) error
	Delete(ctx context.Context, userID uuid.UUID, token string) error
	MarkInactive(ctx context.Context, token string) error
}

// Service handles push notification operations
type Service struct {
	provider Provider
	repo     TokenRepository
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
}

// NewService creates a new push notification service.
// Provider calls go through a circuit breaker so an outage does not stall call setup.
func NewService(provider Provider, repo TokenRepository, m *metrics.Metrics) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
		breaker:  resilience.NewCircuitBreaker("push_provider", resilience.DefaultConfig(), m),
		metrics:  m,
	}
}

// RegisterToken registers a device token, reactivating it if already known.
// A token moving to another account is reassigned to the new owner.
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	existing, err := s.repo.GetByToken(ctx, token.Token)
	if err != nil {
		return fmt.Errorf("failed to look up token: %w", err)
	}

	if existing != nil && existing.UserID == token.UserID {
		existing.Active = true
		existing.Type = token.Type
		existing.DeviceID = token.DeviceID
		existing.Platform = token.Platform
		return s.repo.Update(ctx, existing)
	}

	if existing != nil {
		if err := s.repo.Delete(ctx, existing.UserID, existing.Token); err != nil {
			return fmt.Errorf("failed to release token from previous owner: %w", err)
		}
	}

	token.Active = true
	return s.repo.Store(ctx, token)
}

// UnregisterToken removes a device token of userID
func (s *Service) UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error {
	return s.repo.Delete(ctx, userID, token)
}

// SendIncomingCall notifies every active device of calleeID about a ringing call
func (s *Service) SendIncomingCall(ctx context.Context, calleeID uuid.UUID, call *IncomingCall) error {
	notification := &Notification{
		Title:       "Incoming call",
		Body:        fmt.Sprintf("%s is calling you", call.CallerName),
		Priority:    "high",
		Sound:       "default",
		Category:    "INCOMING_CALL",
		TTL:         constants.CallStaleAfter,
		CollapseKey: call.CallID.String(),
		Data: map[string]string{
			"type":         "incoming_call",
			"call_id":      call.CallID.String(),
			"caller_id":    call.CallerID.String(),
			"caller_name":  call.CallerName,
			"call_type":    call.CallType,
			"channel_name": call.ChannelName,
			"timestamp":    fmt.Sprintf("%d", time.Now().Unix()),
		},
	}

	tokens, err := s.activeTokens(ctx, calleeID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		logger.Debug("No active push tokens for callee",
			zap.String("user_id", calleeID.String()))
		return nil
	}

	var result *SendResult
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		result, sendErr = s.provider.Send(ctx, notification, tokens)
		return sendErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		s.metrics.RecordPushNotificationFailure("incoming_call", "circuit_open")
		return fmt.Errorf("push provider unavailable: %w", err)
	}
	if err != nil {
		s.metrics.RecordPushNotificationFailure("incoming_call", "provider_error")
		return fmt.Errorf("failed to send call notification: %w", err)
	}

	s.metrics.RecordPushNotification("incoming_call")
	if result.FailureCount > 0 {
		s.metrics.RecordPushNotificationFailure("incoming_call", "device_rejected")
	}

	logger.Info("Call notification sent",
		zap.String("call_id", call.CallID.String()),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)))

	if len(result.InvalidTokens) > 0 {
		s.handleInvalidTokens(ctx, result.InvalidTokens)
	}
	return nil
}

func (s *Service) activeTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	stored, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get push tokens: %w", err)
	}

	tokens := make([]string, 0, len(stored))
	for _, token := range stored {
		if token.Active {
			tokens = append(tokens, token.Token)
		}
	}
	return tokens, nil
}

// handleInvalidTokens marks invalid tokens as inactive
func (s *Service) handleInvalidTokens(ctx context.Context, invalidTokens []string) {
	for _, token := range invalidTokens {
		if err := s.repo.MarkInactive(ctx, token); err != nil {
			logger.Warn("Failed to mark token as inactive",
				zap.String("token_prefix", maskPushToken(token)),
				zap.Error(err))
		}
	}
}

// maskPushToken keeps only a short prefix of a device token for logs
func maskPushToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}

// MockProvider logs notifications instead of sending them (development/testing)
type MockProvider struct {
	NotificationsSent int
}

// Send implements Provider interface
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.NotificationsSent++

	logger.Debug("MockProvider: Sending notification",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
		zap.Int("token_count", len(tokens)))

	return &SendResult{SuccessCount: len(tokens)}, nil
}
