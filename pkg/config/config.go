package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/env"
)

// Config holds all configuration for the call service
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Cassandra CassandraConfig `yaml:"cassandra"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Push      PushConfig      `yaml:"push"`
	Call      CallConfig      `yaml:"call"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Environment    string   `yaml:"environment"` // development, staging, production
	ServiceName    string   `yaml:"service_name"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"-"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts       []string      `yaml:"hosts"`
	Keyspace    string        `yaml:"keyspace"`
	Consistency string        `yaml:"consistency"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"-"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `yaml:"level"`  // debug, info, warn, error
	Format   string `yaml:"format"` // json, text
	Output   string `yaml:"output"` // stdout, file
	FilePath string `yaml:"file_path"`
}

// PushConfig selects and configures the push notification provider
type PushConfig struct {
	Provider           string `yaml:"provider"` // mock, fcm, apns
	FCMProjectID       string `yaml:"fcm_project_id"`
	FCMCredentialsPath string `yaml:"fcm_credentials_path"`
	APNsBundleID       string `yaml:"apns_bundle_id"`
	APNsKeyPath        string `yaml:"apns_key_path"`
	APNsKeyID          string `yaml:"apns_key_id"`
	APNsTeamID         string `yaml:"apns_team_id"`
	APNsCertPath       string `yaml:"apns_cert_path"`
	APNsCertPassword   string `yaml:"-"`
	APNsProduction     bool   `yaml:"apns_production"`
}

// CallConfig holds call lifecycle tuning
type CallConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 disables the background sweep
}

// WebSocketConfig holds gateway limits and presence timings
type WebSocketConfig struct {
	MaxConnections int           `yaml:"max_connections"`
	PresenceTTL    time.Duration `yaml:"presence_ttl"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Environment:    "development",
			ServiceName:    "call-service",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     26257,
			User:     "root",
			Database: "learnhub",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 5,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			PoolSize: 10,
			Timeout:  5 * time.Second,
		},
		Cassandra: CassandraConfig{
			Hosts:       []string{"localhost"},
			Keyspace:    "learnhub",
			Consistency: "QUORUM",
			Timeout:     600 * time.Millisecond,
		},
		Log: LogConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "/logs/app.log",
		},
		Push: PushConfig{
			Provider: "mock",
		},
		Call: CallConfig{
			StaleAfter:    constants.CallStaleAfter,
			SweepInterval: constants.CallSweepInterval,
		},
		WebSocket: WebSocketConfig{
			MaxConnections: constants.MaxWebSocketConnections,
			PresenceTTL:    constants.PresenceTTL,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = env.GetInt("PORT", c.Server.Port)
	c.Server.Environment = env.GetString("ENV", c.Server.Environment)
	c.Server.ServiceName = env.GetString("SERVICE_NAME", c.Server.ServiceName)
	c.Server.AllowedOrigins = env.GetStringSlice("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Database.Host = env.GetString("DB_HOST", c.Database.Host)
	c.Database.Port = env.GetInt("DB_PORT", c.Database.Port)
	c.Database.User = env.GetString("DB_USER", c.Database.User)
	c.Database.Password = env.GetStringFromFile("DB_PASSWORD", c.Database.Password)
	c.Database.Database = env.GetString("DB_NAME", c.Database.Database)
	c.Database.SSLMode = env.GetString("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxConns = env.GetInt("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = env.GetInt("DB_MIN_CONNS", c.Database.MinConns)

	c.Redis.Host = env.GetString("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = env.GetInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = env.GetStringFromFile("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = env.GetInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = env.GetInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.Timeout = env.GetDuration("REDIS_TIMEOUT", c.Redis.Timeout)

	c.Cassandra.Hosts = env.GetStringSlice("CASSANDRA_HOSTS", c.Cassandra.Hosts)
	c.Cassandra.Keyspace = env.GetString("CASSANDRA_KEYSPACE", c.Cassandra.Keyspace)
	c.Cassandra.Timeout = env.GetDuration("CASSANDRA_TIMEOUT", c.Cassandra.Timeout)
	c.Cassandra.Consistency = env.GetString("CASSANDRA_CONSISTENCY", c.Cassandra.Consistency)
	c.Cassandra.Username = env.GetString("CASSANDRA_USERNAME", c.Cassandra.Username)
	c.Cassandra.Password = env.GetStringFromFile("CASSANDRA_PASSWORD", c.Cassandra.Password)

	c.JWT.Secret = env.GetStringFromFile("JWT_SECRET", c.JWT.Secret)

	c.Log.Level = env.GetString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env.GetString("LOG_FORMAT", c.Log.Format)
	c.Log.Output = env.GetString("LOG_OUTPUT", c.Log.Output)
	c.Log.FilePath = env.GetString("LOG_FILE_PATH", c.Log.FilePath)

	c.Push.Provider = env.GetString("PUSH_PROVIDER", c.Push.Provider)
	c.Push.FCMProjectID = env.GetString("FCM_PROJECT_ID", c.Push.FCMProjectID)
	c.Push.FCMCredentialsPath = env.GetString("FCM_CREDENTIALS_PATH", c.Push.FCMCredentialsPath)
	c.Push.APNsBundleID = env.GetString("APNS_BUNDLE_ID", c.Push.APNsBundleID)
	c.Push.APNsKeyPath = env.GetString("APNS_KEY_PATH", c.Push.APNsKeyPath)
	c.Push.APNsKeyID = env.GetString("APNS_KEY_ID", c.Push.APNsKeyID)
	c.Push.APNsTeamID = env.GetString("APNS_TEAM_ID", c.Push.APNsTeamID)
	c.Push.APNsCertPath = env.GetString("APNS_CERT_PATH", c.Push.APNsCertPath)
	c.Push.APNsCertPassword = env.GetStringFromFile("APNS_CERT_PASSWORD", c.Push.APNsCertPassword)
	c.Push.APNsProduction = env.GetBool("APNS_PRODUCTION", c.Push.APNsProduction)

	c.Call.StaleAfter = env.GetDuration("CALL_STALE_AFTER", c.Call.StaleAfter)
	c.Call.SweepInterval = env.GetDuration("CALL_SWEEP_INTERVAL", c.Call.SweepInterval)

	c.WebSocket.MaxConnections = env.GetInt("WS_MAX_CONNECTIONS", c.WebSocket.MaxConnections)
	c.WebSocket.PresenceTTL = env.GetDuration("PRESENCE_TTL", c.WebSocket.PresenceTTL)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}
	if c.Call.StaleAfter <= 0 {
		return fmt.Errorf("call stale threshold must be positive, got %s", c.Call.StaleAfter)
	}
	if c.Call.SweepInterval < 0 {
		return fmt.Errorf("call sweep interval must not be negative, got %s", c.Call.SweepInterval)
	}
	if c.WebSocket.PresenceTTL <= 0 {
		return fmt.Errorf("presence TTL must be positive, got %s", c.WebSocket.PresenceTTL)
	}
	if c.WebSocket.MaxConnections <= 0 {
		return fmt.Errorf("websocket connection limit must be positive, got %d", c.WebSocket.MaxConnections)
	}
	return nil
}
