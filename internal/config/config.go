package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Server
	Host string `env:"ATLAS_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"ATLAS_PORT" envDefault:"8080"`

	// Platform database
	DBHost     string `env:"ATLAS_DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"ATLAS_DB_PORT" envDefault:"5432"`
	DBName     string `env:"ATLAS_DB_NAME" envDefault:"atlashub"`
	DBUser     string `env:"ATLAS_DB_USER" envDefault:"atlashub"`
	DBPassword string `env:"ATLAS_DB_PASSWORD" envDefault:"atlashub"`
	DBPoolMax  int    `env:"ATLAS_DB_POOL_MAX" envDefault:"10"`
	DBIdleMs   int    `env:"ATLAS_DB_IDLE_MS" envDefault:"30000"`
	DBConnMs   int    `env:"ATLAS_DB_CONN_MS" envDefault:"5000"`

	// Redis
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Object store (S3-compatible)
	StorageEndpoint  string `env:"ATLAS_STORAGE_ENDPOINT" envDefault:"localhost"`
	StoragePort      int    `env:"ATLAS_STORAGE_PORT" envDefault:"9000"`
	StorageSSL       bool   `env:"ATLAS_STORAGE_SSL" envDefault:"false"`
	StorageRegion    string `env:"ATLAS_STORAGE_REGION" envDefault:"us-east-1"`
	StorageAccessKey string `env:"ATLAS_STORAGE_ACCESS_KEY" envDefault:"atlasadmin"`
	StorageSecretKey string `env:"ATLAS_STORAGE_SECRET_KEY" envDefault:"atlasadmin"`

	// Envelope encryption root. 64 hex chars or any string of at least 32 bytes.
	PlatformMasterKey string `env:"ATLAS_MASTER_KEY,required,notEmpty"`

	// Rate limiting (runtime-mutable via admin settings)
	RateLimitMax      int `env:"ATLAS_RATE_LIMIT_MAX" envDefault:"300"`
	RateLimitWindowMs int `env:"ATLAS_RATE_LIMIT_WINDOW_MS" envDefault:"60000"`

	// SQL execution bounds (runtime-mutable via admin settings)
	SQLMaxRows            int `env:"ATLAS_SQL_MAX_ROWS" envDefault:"1000"`
	SQLStatementTimeoutMs int `env:"ATLAS_SQL_STATEMENT_TIMEOUT_MS" envDefault:"10000"`

	// Storage limits
	PresignedURLExpirySeconds int    `env:"ATLAS_PRESIGNED_URL_EXPIRY_SECONDS" envDefault:"900"`
	MaxUploadSizeBytes        int64  `env:"ATLAS_MAX_UPLOAD_SIZE_BYTES" envDefault:"104857600"` // 100 MiB
	PublicStorageURL          string `env:"ATLAS_PUBLIC_STORAGE_URL"`

	// Scheduler
	SchedulerPollIntervalMs   int `env:"ATLAS_SCHEDULER_POLL_INTERVAL_MS" envDefault:"30000"`
	SchedulerDefaultTimeoutMs int `env:"ATLAS_SCHEDULER_DEFAULT_TIMEOUT_MS" envDefault:"30000"`
	SchedulerMaxConcurrent    int `env:"ATLAS_SCHEDULER_MAX_CONCURRENT" envDefault:"5"`

	// Session
	SessionSecret string `env:"ATLAS_SESSION_SECRET"`
	SessionMaxAge string `env:"ATLAS_SESSION_MAX_AGE" envDefault:"24h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Migrations
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations/platform"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Slack (optional — if not set, cron failure notifications are disabled)
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseURL builds the platform database connection URL.
func (c *Config) DatabaseURL() string {
	return c.AdminDatabaseURL(c.DBName)
}

// AdminDatabaseURL builds a connection URL for an arbitrary database on the
// platform's PostgreSQL server. Used by provisioning and backups, which
// connect to tenant databases as the platform superuser.
func (c *Config) AdminDatabaseURL(dbName string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword),
		c.DBHost, c.DBPort, dbName)
}

// StorageURL returns the S3 endpoint URL.
func (c *Config) StorageURL() string {
	scheme := "http"
	if c.StorageSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.StorageEndpoint, c.StoragePort)
}
