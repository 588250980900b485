package config

import (
	"context"
	"strings"
	"time"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
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
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the marketplace backend.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode the token resolver accepts a bare user id as a
	// bearer token.
	Mode string

	// Store backend name from the store registry.
	DatastoreType string

	// MongoDB connection URL and database name.
	DBURL  string
	DBName string

	// Run datastore migrations (collections + indexes) on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Redis, used to bridge realtime broadcasts across instances.
	// Empty disables the bridge; a single instance does not need it.
	RedisURL string

	// JWT
	JWTSecret string
	JWTExpiry time.Duration

	// Image store backend type: "s3" or "none".
	ImageStoreType string

	// Image upload behavior.
	ImageMaxSize      int64
	ImageMaxPerUpload int

	// S3
	S3Bucket           string
	S3Prefix           string
	S3ExternalEndpoint string
	S3UsePathStyle     bool

	// Mail: "resend" sends through the Resend HTTP API, "log" only logs.
	MailerType     string
	ResendAPIKey   string
	MailFrom       string
	ResetURLBase   string
	ResetTokenTTL  time.Duration
	MinPasswordLen int

	// Realtime websocket tuning.
	WSWriteWait      time.Duration
	WSPongWait       time.Duration
	WSMaxMessageSize int64
	WSSendBuffer     int

	// Server
	Listener ListenerConfig
	// ManagementAccessLog enables request logging for the probe endpoints too
	// (/health, /ready, /metrics). Disabled by default to suppress probe noise.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR}
	// expansion. Defaults to "service=mythrift".
	MetricsLabels string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "mongo",
		DBName:                  "mythrift",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		JWTExpiry:               7 * 24 * time.Hour,
		ImageStoreType:          "none",
		ImageMaxSize:            10 * 1024 * 1024, // 10 MB
		ImageMaxPerUpload:       10,
		MailerType:              "log",
		MailFrom:                "MyThrift <no-reply@mythrift.app>",
		ResetTokenTTL:           time.Hour,
		MinPasswordLen:          6,
		WSWriteWait:             10 * time.Second,
		WSPongWait:              60 * time.Second,
		WSMaxMessageSize:        4 * 1024,
		WSSendBuffer:            256,
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  20 * 1024 * 1024,
		DrainTimeout: 30,
	}
}

// PingPeriod returns the interval at which the write pump sends pings.
// Must be shorter than WSPongWait so a healthy peer always answers in time.
func (c *Config) PingPeriod() time.Duration {
	return c.WSPongWait * 9 / 10
}

// ParsedCORSOrigins returns the configured CORS origins as a trimmed list.
func (c *Config) ParsedCORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
