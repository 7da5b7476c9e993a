package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"learnhub-backend/pkg/constants"
)

// CockroachDB holds the pgx pool for the calls and users tables
type CockroachDB struct {
	Pool *pgxpool.Pool
}

// CockroachConfig holds CockroachDB connection configuration
type CockroachConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN renders config as a postgresql:// URL with the password escaped
func (config *CockroachConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(config.User, config.Password),
		Host:     net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Path:     "/" + config.Database,
		RawQuery: url.Values{"sslmode": {config.SSLMode}}.Encode(),
	}
	return u.String()
}

// NewCockroachDB opens a pool and pings it once
func NewCockroachDB(ctx context.Context, config *CockroachConfig) (*CockroachDB, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = constants.MaxConnLifetime
	poolConfig.MaxConnIdleTime = constants.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = constants.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &CockroachDB{Pool: pool}, nil
}

// ConnectCockroachWithRetry dials with exponential backoff until maxAttempts is spent
func ConnectCockroachWithRetry(ctx context.Context, config *CockroachConfig, maxAttempts int) (*CockroachDB, error) {
	return connectWithRetry(ctx, "cockroachdb", maxAttempts, func(ctx context.Context) (*CockroachDB, error) {
		return NewCockroachDB(ctx, config)
	})
}

func (db *CockroachDB) Close() {
	db.Pool.Close()
}
