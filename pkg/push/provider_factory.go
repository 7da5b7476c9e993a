package push

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"learnhub-backend/pkg/config"
	"learnhub-backend/pkg/logger"
)

// ProviderType names a push backend in PUSH_PROVIDER
type ProviderType string

const (
	ProviderTypeMock ProviderType = "mock"
	ProviderTypeFCM  ProviderType = "fcm"
	ProviderTypeAPNs ProviderType = "apns"
)

// NewProvider builds the backend selected by cfg.Provider. An empty value means mock.
func NewProvider(ctx context.Context, cfg *config.PushConfig) (Provider, error) {
	providerType := ProviderType(cfg.Provider)
	logger.Info("Initializing push notification provider",
		zap.String("provider_type", string(providerType)))

	switch providerType {
	case ProviderTypeFCM:
		if cfg.FCMProjectID == "" {
			return nil, errors.New("FCM_PROJECT_ID is required for FCM provider")
		}
		return NewFCMProvider(ctx, &FCMConfig{
			ProjectID:       cfg.FCMProjectID,
			CredentialsPath: cfg.FCMCredentialsPath,
		})
	case ProviderTypeAPNs:
		apnsConfig, err := apnsConfigFrom(cfg)
		if err != nil {
			return nil, err
		}
		return NewAPNsProvider(apnsConfig)
	case ProviderTypeMock, "":
		return &MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}

// apnsConfigFrom prefers token (.p8) auth and falls back to a certificate
func apnsConfigFrom(cfg *config.PushConfig) (*APNsConfig, error) {
	if cfg.APNsBundleID == "" {
		return nil, errors.New("APNS_BUNDLE_ID is required for APNs provider")
	}

	apnsConfig := &APNsConfig{
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}
	switch {
	case cfg.APNsKeyPath != "" && cfg.APNsKeyID != "" && cfg.APNsTeamID != "":
		apnsConfig.KeyPath = cfg.APNsKeyPath
		apnsConfig.KeyID = cfg.APNsKeyID
		apnsConfig.TeamID = cfg.APNsTeamID
	case cfg.APNsCertPath != "":
		apnsConfig.CertificatePath = cfg.APNsCertPath
		apnsConfig.CertificatePassword = cfg.APNsCertPassword
	default:
		return nil, errors.New("APNs needs APNS_KEY_PATH, APNS_KEY_ID and APNS_TEAM_ID, or APNS_CERT_PATH")
	}
	return apnsConfig, nil
}
