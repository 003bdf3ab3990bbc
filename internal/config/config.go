package config

import (
	"context"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Host              string
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	DBKindSQLite   = "sqlite"
	DBKindPostgres = "postgres"
)

const (
	CacheKindNone   = "none"
	CacheKindMemory = "memory"
	CacheKindRedis  = "redis"
)

// DefaultCORSOrigins matches browser extension origins and local development servers.
const DefaultCORSOrigins = `^chrome-extension://[a-zA-Z0-9]+$,^moz-extension://[a-zA-Z0-9\-]+$,^https?://localhost(:\d+)?$`

// Config holds all configuration for the conversation service. It is built once
// at startup and treated as read-only afterwards.
type Config struct {
	// Debug enables verbose logging, including every SQL statement.
	Debug bool

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json, logfmt

	// Database
	DBKind string // "sqlite", "postgres", or "" to infer from DBURL
	DBURL  string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// DBBusyTimeout is how long a sqlite writer waits for the database lock.
	DBBusyTimeout time.Duration

	// Conversation read cache
	CacheKind       string // "none", "memory" or "redis"
	CacheTTL        time.Duration
	CacheMaxEntries int64 // memory cache only
	RedisURL        string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints (/health, /ready, /metrics).
	ManagementAccessLog bool
	CORSEnabled         bool
	// CORSOrigins is a comma-separated list of regular expressions matched against the Origin header.
	CORSOrigins string

	// Security
	// APITokens maps accepted bearer tokens to the client name they identify.
	// The API is open when the map is empty.
	APITokens map[string]string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:                "info",
		LogFormat:               "text",
		DBURL:                   "./chatmem.db",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          30,
		DBMaxIdleConns:          10,
		DBConnMaxLifetime:       time.Hour,
		DBBusyTimeout:           20 * time.Second,
		CacheKind:               CacheKindNone,
		CacheTTL:                10 * time.Minute,
		CacheMaxEntries:         10_000,
		MetricsLabels:           "service=chatmem-service",
		Listener: ListenerConfig{
			Port:              8000,
			EnablePlainText:   true,
			EnableTLS:         false,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
		},
		CORSEnabled:  true,
		CORSOrigins:  DefaultCORSOrigins,
		APITokens:    map[string]string{},
		MaxBodySize:  10 * 1024 * 1024,
		DrainTimeout: 30,
	}
}

// ResolvedDBKind returns the configured store kind, inferring it from the
// URL scheme when none was given.
func (c *Config) ResolvedDBKind() string {
	if c == nil {
		return DBKindSQLite
	}
	if kind := strings.TrimSpace(c.DBKind); kind != "" {
		return kind
	}
	url := strings.ToLower(strings.TrimSpace(c.DBURL))
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DBKindPostgres
	}
	return DBKindSQLite
}
