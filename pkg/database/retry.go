package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
)

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// backoff returns the wait after a failed attempt: 1s, 2s, 4s... capped at retryMaxDelay
func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

// connectWithRetry calls dial until it succeeds, ctx ends, or maxAttempts is spent
func connectWithRetry[T any](ctx context.Context, store string, maxAttempts int, dial func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}

		delay := backoff(attempt)
		logger.Warn("Database connection attempt failed",
			zap.String("store", store),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("%s: failed to connect after %d attempts: %w", store, maxAttempts, lastErr)
}
