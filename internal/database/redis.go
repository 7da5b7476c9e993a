// Package database wraps the Redis client shared by presence, relay, push tokens and rate limiting.
package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
)

// ErrDegraded is returned instead of touching Redis while it is unreachable
var ErrDegraded = errors.New("redis is in degraded mode")

const pingTimeout = 2 * time.Second

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// RedisClient is a go-redis client plus a degraded flag kept current by HealthCheck.
// Callers check IsDegraded (or use the Safe* helpers) and fall back to local state.
type RedisClient struct {
	Client *redis.Client

	degraded atomic.Bool
	pingMu   sync.Mutex
	metrics  *metrics.Metrics
}

// NewRedisDB returns a client even when the first ping fails; it then starts degraded
// and the error is returned alongside it.
func NewRedisDB(cfg *RedisConfig, m *metrics.Metrics) (*RedisClient, error) {
	r := &RedisClient{
		Client: redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			MaxRetries:   3,
		}),
		metrics: m,
	}
	return r, r.HealthCheck(context.Background())
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func (r *RedisClient) IsDegraded() bool {
	return r.degraded.Load()
}

// HealthCheck pings Redis and flips the degraded flag. Concurrent calls are serialized.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.pingMu.Lock()
	defer r.pingMu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := r.Client.Ping(pingCtx).Err()
	r.markDegraded(err != nil)
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (r *RedisClient) markDegraded(degraded bool) {
	r.metrics.SetRedisDegraded(degraded)
	if r.degraded.Swap(degraded) == degraded {
		return
	}
	if degraded {
		logger.Warn("Redis entered degraded mode")
	} else {
		logger.Info("Redis recovered from degraded mode")
	}
}

// StartHealthCheck runs HealthCheck every interval until ctx is done
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.HealthCheck(ctx); err != nil {
				logger.Debug("Redis still unreachable", zap.Error(err))
			}
		}
	}
}

// SafePublish publishes unless degraded, in which case the command carries ErrDegraded
func (r *RedisClient) SafePublish(ctx context.Context, channel string, message any) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, ErrDegraded)
	}
	return r.Client.Publish(ctx, channel, message)
}

// SafeExists counts existing keys unless degraded
func (r *RedisClient) SafeExists(ctx context.Context, keys ...string) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, ErrDegraded)
	}
	return r.Client.Exists(ctx, keys...)
}
