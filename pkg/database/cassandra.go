package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

const defaultCassandraTimeout = 5 * time.Second

// CassandraDB holds the gocql session for call history messages
type CassandraDB struct {
	Session *gocql.Session
}

// CassandraConfig holds Cassandra connection configuration
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Consistency string // ONE, LOCAL_QUORUM, QUORUM... empty means QUORUM
	Username    string
	Password    string
	Timeout     time.Duration
}

func (config *CassandraConfig) cluster() (*gocql.ClusterConfig, error) {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Timeout = defaultCassandraTimeout
	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	}

	cluster.Consistency = gocql.Quorum
	if config.Consistency != "" {
		consistency, err := gocql.ParseConsistencyWrapper(strings.ToUpper(config.Consistency))
		if err != nil {
			return nil, fmt.Errorf("invalid cassandra consistency %q: %w", config.Consistency, err)
		}
		cluster.Consistency = consistency
	}

	if config.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}
	return cluster, nil
}

// NewCassandraDB creates a session against the configured keyspace
func NewCassandraDB(config *CassandraConfig) (*CassandraDB, error) {
	cluster, err := config.cluster()
	if err != nil {
		return nil, err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}
	return &CassandraDB{Session: session}, nil
}

// ConnectCassandraWithRetry retries session creation while the cluster boots
func ConnectCassandraWithRetry(ctx context.Context, config *CassandraConfig, maxAttempts int) (*CassandraDB, error) {
	return connectWithRetry(ctx, "cassandra", maxAttempts, func(context.Context) (*CassandraDB, error) {
		return NewCassandraDB(config)
	})
}

func (c *CassandraDB) Close() {
	c.Session.Close()
}
