package middleware

import (
	"context"
	"fmt"

	"learnhub-backend/internal/database"
)

// blacklistKeyPrefix is the key space the auth service writes revoked token ids (jti) to
const blacklistKeyPrefix = "blacklist:"

// RedisRevocationChecker looks token ids up in the auth service's Redis blacklist
type RedisRevocationChecker struct {
	client *database.RedisClient
}

// NewRedisRevocationChecker creates a new RedisRevocationChecker
func NewRedisRevocationChecker(client *database.RedisClient) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// IsRevoked reports whether tokenID was blacklisted. While Redis is degraded
// nothing is looked up and every token counts as live.
func (c *RedisRevocationChecker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" || c.client.IsDegraded() {
		return false, nil
	}

	exists, err := c.client.SafeExists(ctx, blacklistKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}
