package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_PORT"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
type Config struct {
	AppEnv           string `envconfig:"APP_ENV" default:"development"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error
	ExtractRulesFile string `envconfig:"EXTRACT_RULES_FILE"`       // empty means the embedded rule table
	HttpServer       ServerConfig
	GrpcServer       GrpcServerConfig
	Postgres         PostgresConfig
	Scheduler        SchedulerConfig
	Cache            CacheConfig
	Pricing          PricingConfig
	Acme             SupplierConfig `envconfig:"ACME"`
	Dynamo           DynamoConfig   `envconfig:"DYNAMO"`
	Crest            SupplierConfig `envconfig:"CREST"`
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"90s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds the optional refresh-history database. History is
// disabled when Host is empty.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	DBName   string `envconfig:"POSTGRES_DBNAME" default:"catalog"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	ConnectAttempts   int           `envconfig:"POSTGRES_CONNECT_ATTEMPTS" default:"5"`
	ConnectRetryDelay time.Duration `envconfig:"POSTGRES_CONNECT_RETRY_DELAY" default:"2s"`
}

// Enabled reports whether a database has been configured.
func (pc *PostgresConfig) Enabled() bool {
	return pc.Host != ""
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// URL returns the connection string in URL form, as the migrator expects it.
func (pc *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		pc.User, pc.Password, pc.Host, pc.Port, pc.DBName, pc.SSLMode)
}

// SchedulerConfig controls the background refresh loop.
type SchedulerConfig struct {
	Interval          time.Duration `envconfig:"REFRESH_INTERVAL" default:"30m"`
	RefreshOnStart    bool          `envconfig:"REFRESH_ON_START" default:"true"`
	EnrichmentEnabled bool          `envconfig:"IMAGE_ENRICHMENT_ENABLED" default:"false"`
	EnrichmentTimeout time.Duration `envconfig:"ENRICHMENT_TIMEOUT" default:"10m"`
}

// CacheConfig holds the TTLs of the supplier and lookup caches.
type CacheConfig struct {
	ProductTTL time.Duration `envconfig:"PRODUCT_CACHE_TTL" default:"15m"`
	LookupTTL  time.Duration `envconfig:"LOOKUP_CACHE_TTL" default:"24h"`
	FailureTTL time.Duration `envconfig:"FAILURE_CACHE_TTL" default:"1m"`
}

// PricingConfig holds the regional normalization constants.
type PricingConfig struct {
	TaxRate float64 `envconfig:"TAX_RATE" default:"0.15"`
	// StockMoreIncrement is added to a branch quantity flagged as "more
	// available than shown". It is an approximation, not a true count.
	StockMoreIncrement int `envconfig:"STOCK_MORE_INCREMENT" default:"5"`
}

// SupplierConfig holds the opaque connection settings of one supplier feed.
type SupplierConfig struct {
	BaseURL string        `envconfig:"BASE_URL"`
	APIKey  string        `envconfig:"API_KEY"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// Enabled reports whether the supplier has an endpoint configured.
func (sc SupplierConfig) Enabled() bool {
	return sc.BaseURL != ""
}

// DynamoConfig extends SupplierConfig with the static-asset endpoint used for
// product page links and the outbound request budget.
type DynamoConfig struct {
	SupplierConfig
	AssetURL          string  `envconfig:"ASSET_URL"`
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"5"`
}

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot express with tags.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("invalid REFRESH_INTERVAL: %s", c.Scheduler.Interval)
	}
	if c.Pricing.TaxRate < 0 || c.Pricing.TaxRate >= 1 {
		return fmt.Errorf("invalid TAX_RATE: %v (expected 0 <= rate < 1)", c.Pricing.TaxRate)
	}
	if c.Pricing.StockMoreIncrement < 0 {
		return fmt.Errorf("invalid STOCK_MORE_INCREMENT: %d", c.Pricing.StockMoreIncrement)
	}
	if c.Cache.ProductTTL <= 0 || c.Cache.LookupTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
