package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Sync modes.
const (
	SyncModeEmbedded = "embedded"
	SyncModeAMQP     = "amqp"
)

type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	Sync      SyncConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	MinIO     MinIOConfig
	RateLimit RateLimitConfig
	IMDb      IMDbConfig
	Log       LogConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"7000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"45s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"15s"`
	PublicURL       string        `envconfig:"API_PUBLIC_URL" default:"http://localhost:7000"`
}

type CacheConfig struct {
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"30m"`
	FetchTimeout time.Duration `envconfig:"CACHE_FETCH_TIMEOUT" default:"12s"`

	// RetainFor bounds how long stale entries stay in the store for stale-serve.
	RetainFor time.Duration `envconfig:"CACHE_RETAIN_FOR" default:"720h"`
}

type SyncConfig struct {
	Enabled         bool          `envconfig:"SYNC_ENABLED" default:"true"`
	Mode            string        `envconfig:"SYNC_MODE" default:"embedded"`
	Interval        time.Duration `envconfig:"SYNC_INTERVAL" default:"30m"`
	Concurrency     int           `envconfig:"SYNC_CONCURRENCY" default:"1"`
	MaxAttempts     int           `envconfig:"SYNC_MAX_ATTEMPTS" default:"3"`
	Backoff         string        `envconfig:"SYNC_BACKOFF" default:"exponential"`
	BackoffBase     time.Duration `envconfig:"SYNC_BACKOFF_BASE" default:"30s"`
	AttemptTimeout  time.Duration `envconfig:"SYNC_ATTEMPT_TIMEOUT" default:"30s"`
	InactiveAfter   time.Duration `envconfig:"SYNC_INACTIVE_AFTER" default:"720h"`
	ShutdownTimeout time.Duration `envconfig:"SYNC_SHUTDOWN_TIMEOUT" default:"30s"`
	// ReportInterval is how often amqp workers publish queue stats for /api/stats.
	ReportInterval time.Duration `envconfig:"SYNC_REPORT_INTERVAL" default:"15s"`
}

type StorageConfig struct {
	// Primary is "redis" or "memory". "memory" runs without any external store.
	Primary         string        `envconfig:"STORAGE_PRIMARY" default:"redis"`
	FallbackEnabled bool          `envconfig:"STORAGE_FALLBACK_ENABLED" default:"true"`
	HealthInterval  time.Duration `envconfig:"STORAGE_HEALTH_INTERVAL" default:"5s"`
	SweepInterval   time.Duration `envconfig:"STORAGE_SWEEP_INTERVAL" default:"5m"`
}

type RedisConfig struct {
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"1s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"1s"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"true"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"watchlist"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"watchlist"`
	DBName   string `envconfig:"POSTGRES_DB" default:"watchlist"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	Migrate  bool   `envconfig:"POSTGRES_MIGRATE" default:"true"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"watchlist"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"watchlist"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type MinIOConfig struct {
	Enabled   bool          `envconfig:"MINIO_ENABLED" default:"false"`
	Endpoint  string        `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string        `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string        `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string        `envconfig:"MINIO_BUCKET" default:"watchlists"`
	UseSSL    bool          `envconfig:"MINIO_USE_SSL" default:"false"`
	URLExpiry time.Duration `envconfig:"MINIO_URL_EXPIRY" default:"15m"`
}

type RateLimitConfig struct {
	Enabled     bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Window      time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	MaxRequests int           `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"120"`

	// Distributed shares counters through the key-value store.
	Distributed bool `envconfig:"RATE_LIMIT_DISTRIBUTED" default:"false"`
}

type IMDbConfig struct {
	GraphQLURL         string  `envconfig:"IMDB_GRAPHQL_URL" default:"https://api.graphql.imdb.com/"`
	OperationName      string  `envconfig:"IMDB_OPERATION_NAME" default:"WatchListPageRefiner"`
	PersistedQueryHash string  `envconfig:"IMDB_PERSISTED_QUERY_HASH" default:""`
	PageSize           int     `envconfig:"IMDB_PAGE_SIZE" default:"250"`
	MaxPages           int     `envconfig:"IMDB_MAX_PAGES" default:"40"`
	RequestsPerSecond  float64 `envconfig:"IMDB_REQUESTS_PER_SECOND" default:"2"`
	Burst              int     `envconfig:"IMDB_BURST" default:"2"`
	UserAgent          string  `envconfig:"IMDB_USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"`
}

type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	File       string `envconfig:"LOG_FILE" default:""`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`
	Compress   bool   `envconfig:"LOG_COMPRESS" default:"true"`
}

type AdminConfig struct {
	// Token enables the admin routes when non-empty.
	Token string `envconfig:"ADMIN_TOKEN" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Sync.Mode {
	case SyncModeEmbedded, SyncModeAMQP:
	default:
		return fmt.Errorf("SYNC_MODE must be %q or %q, got %q", SyncModeEmbedded, SyncModeAMQP, c.Sync.Mode)
	}
	switch c.Storage.Primary {
	case "redis", "memory":
	default:
		return fmt.Errorf("STORAGE_PRIMARY must be \"redis\" or \"memory\", got %q", c.Storage.Primary)
	}
	switch c.Sync.Backoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("SYNC_BACKOFF must be \"fixed\" or \"exponential\", got %q", c.Sync.Backoff)
	}
	// Workers and the API only see each other's users and cache through shared backends.
	if c.Sync.Mode == SyncModeAMQP {
		if !c.Database.Enabled {
			return fmt.Errorf("SYNC_MODE=%s requires POSTGRES_ENABLED=true", SyncModeAMQP)
		}
		if c.Storage.Primary != "redis" {
			return fmt.Errorf("SYNC_MODE=%s requires STORAGE_PRIMARY=redis", SyncModeAMQP)
		}
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1")
	}
	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_MAX_REQUESTS and RATE_LIMIT_WINDOW")
	}

	// Tickers and timeouts built from these panic or expire at once when not positive.
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"CACHE_TTL", c.Cache.TTL},
		{"CACHE_FETCH_TIMEOUT", c.Cache.FetchTimeout},
		{"CACHE_RETAIN_FOR", c.Cache.RetainFor},
		{"SYNC_INTERVAL", c.Sync.Interval},
		{"SYNC_ATTEMPT_TIMEOUT", c.Sync.AttemptTimeout},
		{"SYNC_REPORT_INTERVAL", c.Sync.ReportInterval},
		{"STORAGE_HEALTH_INTERVAL", c.Storage.HealthInterval},
		{"STORAGE_SWEEP_INTERVAL", c.Storage.SweepInterval},
	}
	for _, d := range positive {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}
