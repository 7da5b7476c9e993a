package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"learnhub-backend/pkg/logger"
)

// fcmMaxTokens is the multicast limit of the FCM v1 API
const fcmMaxTokens = 500

// fcmSender is the part of *messaging.Client the provider uses
type fcmSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMProvider delivers notifications to Android (and FCM-registered iOS) devices
type FCMProvider struct {
	client fcmSender
}

// FCMConfig takes either a service account file or its JSON content
type FCMConfig struct {
	CredentialsPath string
	CredentialsJSON []byte
	ProjectID       string
}

// NewFCMProvider initializes a Firebase app and its messaging client
func NewFCMProvider(ctx context.Context, config *FCMConfig) (*FCMProvider, error) {
	if config == nil {
		return nil, errors.New("FCM config is required")
	}

	var credentials option.ClientOption
	switch {
	case len(config.CredentialsJSON) > 0:
		credentials = option.WithCredentialsJSON(config.CredentialsJSON)
	case config.CredentialsPath != "":
		credentials = option.WithCredentialsFile(config.CredentialsPath)
	default:
		return nil, errors.New("FCM credentials are required (file path or JSON)")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: config.ProjectID}, credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	logger.Info("FCM provider initialized", zap.String("project_id", config.ProjectID))
	return &FCMProvider{client: client}, nil
}

// Send pushes to tokens in chunks of fcmMaxTokens. A chunk failing as a whole
// aborts the send; per-token failures are collected in the result.
func (f *FCMProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}

	for start := 0; start < len(tokens); start += fcmMaxTokens {
		chunk := tokens[start:min(start+fcmMaxTokens, len(tokens))]

		batch, err := f.client.SendEachForMulticast(ctx, buildFCMMessage(notification, chunk))
		if err != nil {
			return nil, fmt.Errorf("failed to send FCM message to %d tokens: %w", len(chunk), err)
		}

		result.SuccessCount += batch.SuccessCount
		result.FailureCount += batch.FailureCount
		for i, resp := range batch.Responses {
			if resp.Success || resp.Error == nil {
				continue
			}
			result.Errors = append(result.Errors, resp.Error)
			if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
				result.InvalidTokens = append(result.InvalidTokens, chunk[i])
				continue
			}
			logger.Warn("FCM send failed for token",
				zap.String("token_prefix", maskPushToken(chunk[i])),
				zap.Error(resp.Error))
		}
	}

	return result, nil
}

func buildFCMMessage(notification *Notification, tokens []string) *messaging.MulticastMessage {
	android := &messaging.AndroidConfig{
		Priority:    "normal",
		CollapseKey: notification.CollapseKey,
		Notification: &messaging.AndroidNotification{
			Sound:             notification.Sound,
			ChannelID:         notification.Category,
			NotificationCount: notification.Badge,
		},
	}
	if notification.Priority == "high" {
		android.Priority = "high"
	}
	if notification.TTL > 0 {
		ttl := notification.TTL
		android.TTL = &ttl
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   notification.Data,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Android: android,
	}
}
