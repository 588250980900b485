package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	registryimages "github.com/BusyMan009/my-thrift-backend/internal/registry/images"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/BusyMan009/my-thrift-backend/internal/plugin/images/s3store"
	_ "github.com/BusyMan009/my-thrift-backend/internal/plugin/store/mongo"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	var jwtExpiryHours int = int(cfg.JWTExpiry / time.Hour)
	var resetTokenTTLMins int = int(cfg.ResetTokenTTL / time.Minute)
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the marketplace HTTP and websocket server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs, &jwtExpiryHours, &resetTokenTTLMins),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.JWTExpiry = time.Duration(jwtExpiryHours) * time.Hour
			cfg.ResetTokenTTL = time.Duration(resetTokenTTLMins) * time.Minute
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs, jwtExpiryHours, resetTokenTTLMins *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("MYTHRIFT_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MYTHRIFT_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("MYTHRIFT_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("MYTHRIFT_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling on the API",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("MYTHRIFT_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated list of allowed CORS origins; empty allows any",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MYTHRIFT_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("MYTHRIFT_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("MYTHRIFT_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL",
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "db-name",
			Category:    "Database:",
			Sources:     cli.EnvVars("MYTHRIFT_DB_NAME"),
			Destination: &cfg.DBName,
			Value:       cfg.DBName,
			Usage:       "Database name",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("MYTHRIFT_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Create collections and indexes on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MYTHRIFT_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MYTHRIFT_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Authentication ────────────────────────────────────────
		&cli.StringFlag{
			Name:        "jwt-secret",
			Category:    "Authentication:",
			Sources:     cli.EnvVars("MYTHRIFT_JWT_SECRET"),
			Destination: &cfg.JWTSecret,
			Usage:       "HMAC secret for signing access tokens",
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "jwt-expiry-hours",
			Category:    "Authentication:",
			Sources:     cli.EnvVars("MYTHRIFT_JWT_EXPIRY_HOURS"),
			Destination: jwtExpiryHours,
			Value:       *jwtExpiryHours,
			Usage:       "Access token lifetime in hours",
		},
		&cli.IntFlag{
			Name:        "min-password-len",
			Category:    "Authentication:",
			Sources:     cli.EnvVars("MYTHRIFT_MIN_PASSWORD_LEN"),
			Destination: &cfg.MinPasswordLen,
			Value:       cfg.MinPasswordLen,
			Usage:       "Minimum accepted password length",
		},

		// ── Realtime ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Realtime:",
			Sources:     cli.EnvVars("MYTHRIFT_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL bridging realtime events across instances; empty disables the bridge",
		},
		&cli.IntFlag{
			Name:        "ws-send-buffer",
			Category:    "Realtime:",
			Sources:     cli.EnvVars("MYTHRIFT_WS_SEND_BUFFER"),
			Destination: &cfg.WSSendBuffer,
			Value:       cfg.WSSendBuffer,
			Usage:       "Per-client outbound event buffer; clients that fall this far behind are dropped",
		},

		// ── Image Storage ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "images-kind",
			Category:    "Image Storage:",
			Sources:     cli.EnvVars("MYTHRIFT_IMAGES_KIND"),
			Destination: &cfg.ImageStoreType,
			Value:       cfg.ImageStoreType,
			Usage:       "Image store (none|" + strings.Join(registryimages.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "images-s3-bucket",
			Category:    "Image Storage:",
			Sources:     cli.EnvVars("MYTHRIFT_IMAGES_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket for product images",
		},
		&cli.StringFlag{
			Name:        "images-s3-prefix",
			Category:    "Image Storage:",
			Sources:     cli.EnvVars("MYTHRIFT_IMAGES_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix inside the S3 bucket",
		},
		&cli.StringFlag{
			Name:        "images-s3-external-endpoint",
			Category:    "Image Storage:",
			Sources:     cli.EnvVars("MYTHRIFT_IMAGES_S3_EXTERNAL_ENDPOINT"),
			Destination: &cfg.S3ExternalEndpoint,
			Usage:       "Public base URL for stored images (e.g. a CDN or MinIO endpoint)",
		},
		&cli.BoolFlag{
			Name:        "images-s3-use-path-style",
			Category:    "Image Storage:",
			Sources:     cli.EnvVars("MYTHRIFT_IMAGES_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (required for LocalStack/MinIO)",
		},

		// ── Mail ──────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mailer-kind",
			Category:    "Mail:",
			Sources:     cli.EnvVars("MYTHRIFT_MAILER_KIND"),
			Destination: &cfg.MailerType,
			Value:       cfg.MailerType,
			Usage:       "Mailer backend (log|resend)",
		},
		&cli.StringFlag{
			Name:        "resend-api-key",
			Category:    "Mail:",
			Sources:     cli.EnvVars("MYTHRIFT_RESEND_API_KEY", "RESEND_API_KEY"),
			Destination: &cfg.ResendAPIKey,
			Usage:       "Resend API key",
		},
		&cli.StringFlag{
			Name:        "mail-from",
			Category:    "Mail:",
			Sources:     cli.EnvVars("MYTHRIFT_MAIL_FROM"),
			Destination: &cfg.MailFrom,
			Value:       cfg.MailFrom,
			Usage:       "From address on outgoing mail",
		},
		&cli.StringFlag{
			Name:        "reset-url-base",
			Category:    "Mail:",
			Sources:     cli.EnvVars("MYTHRIFT_RESET_URL_BASE"),
			Destination: &cfg.ResetURLBase,
			Usage:       "Frontend base URL the reset token is appended to",
		},
		&cli.IntFlag{
			Name:        "reset-token-ttl-minutes",
			Category:    "Mail:",
			Sources:     cli.EnvVars("MYTHRIFT_RESET_TOKEN_TTL_MINUTES"),
			Destination: resetTokenTTLMins,
			Value:       *resetTokenTTLMins,
			Usage:       "Password reset token lifetime in minutes",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("MYTHRIFT_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=mythrift",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isUploadRequest(c.Request) {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

// isUploadRequest reports whether the request carries multipart image
// uploads; those are size-limited per file by the image store instead.
func isUploadRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	if req.Method != http.MethodPost || req.URL.Path != "/api/products" {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type")))
	return strings.HasPrefix(contentType, "multipart/form-data")
}
