package serve

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/logging"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/chatmem-service/internal/plugin/cache/memory"
	_ "github.com/chirino/chatmem-service/internal/plugin/cache/noop"
	_ "github.com/chirino/chatmem-service/internal/plugin/cache/redis"
	_ "github.com/chirino/chatmem-service/internal/plugin/route/conversations"
	_ "github.com/chirino/chatmem-service/internal/plugin/route/openapi"
	_ "github.com/chirino/chatmem-service/internal/plugin/route/system"
	_ "github.com/chirino/chatmem-service/internal/plugin/store/postgres"
	_ "github.com/chirino/chatmem-service/internal/plugin/store/sqlite"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	var apiTokens string
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the conversation API server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs, &apiTokens),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyCompatFromEnv(); err != nil {
				return err
			}
			tokens, err := parseAPITokens(apiTokens)
			if err != nil {
				return err
			}
			for token, client := range tokens {
				cfg.APITokens[token] = client
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat, cfg.Debug); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int, apiTokens *string) []cli.Flag {
	flags := []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_MAX_BODY_SIZE_BYTES"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Value:       cfg.CORSEnabled,
			Usage:       "Answer CORS preflight requests from allowed origins",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMEM_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Value:       cfg.CORSOrigins,
			Usage:       "Comma-separated regular expressions matched against the Origin header",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.StringFlag{
			Name:        "host",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHATMEM_HOST", "API_HOST"),
			Destination: &cfg.Listener.Host,
			Value:       cfg.Listener.Host,
			Usage:       "Interface to bind (empty = all interfaces)",
		},
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHATMEM_PORT", "API_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHATMEM_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHATMEM_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMEM_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMEM_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMEM_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "api-tokens",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CHATMEM_API_TOKENS"),
			Destination: apiTokens,
			Usage:       "Comma-separated client=token pairs accepted as bearer tokens; the API is open when none are configured",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("CHATMEM_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHATMEM_CACHE_KIND"),
			Destination: &cfg.CacheKind,
			Value:       cfg.CacheKind,
			Usage:       "Conversation read cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHATMEM_CACHE_TTL"),
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "How long a cached conversation is served before it is read again",
		},
		&cli.Int64Flag{
			Name:        "cache-max-entries",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHATMEM_CACHE_MAX_ENTRIES"),
			Destination: &cfg.CacheMaxEntries,
			Value:       cfg.CacheMaxEntries,
			Usage:       "Maximum number of conversations held by the memory cache",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHATMEM_REDIS_URL", "REDIS_URL"),
			Destination: &cfg.RedisURL,
			Value:       cfg.RedisURL,
			Usage:       "Redis URL used when --cache-kind=redis",
		},
	}
	flags = append(flags, DatabaseFlags(cfg)...)
	return append(flags, LoggingFlags(cfg)...)
}

// DatabaseFlags returns the flags that select and tune the conversation store.
// They are shared with the migrate command.
func DatabaseFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMEM_DB_KIND"),
			Destination: &cfg.DBKind,
			Value:       cfg.DBKind,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + "); inferred from --db-url when empty",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMEM_DB_URL", "DATABASE_URL"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "Database file path or connection URL",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMEM_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMEM_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
	}
}

// LoggingFlags returns the flags that control log output.
func LoggingFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "debug",
			Category:    "Logging:",
			Sources:     cli.EnvVars("CHATMEM_DEBUG", "DEBUG"),
			Destination: &cfg.Debug,
			Usage:       "Log at debug level, including every SQL statement",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Logging:",
			Sources:     cli.EnvVars("CHATMEM_LOG_LEVEL", "LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Minimum log level (debug|info|warn|error)",
		},
		&cli.StringFlag{
			Name:        "log-format",
			Category:    "Logging:",
			Sources:     cli.EnvVars("CHATMEM_LOG_FORMAT"),
			Destination: &cfg.LogFormat,
			Value:       cfg.LogFormat,
			Usage:       "Log output format (text|json|logfmt)",
		},
	}
}

// parseAPITokens parses "client=token,client=token". A bare token is
// assigned to the "default" client.
func parseAPITokens(raw string) (map[string]string, error) {
	result := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		client, token, found := strings.Cut(part, "=")
		if !found {
			client, token = "default", part
		}
		client = strings.ToLower(strings.TrimSpace(client))
		token = strings.TrimSpace(token)
		if client == "" || token == "" {
			return nil, fmt.Errorf("invalid --api-tokens entry %q: expected client=token", part)
		}
		result[token] = client
	}
	return result, nil
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
		if maxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		}
		c.Next()
	}
}
