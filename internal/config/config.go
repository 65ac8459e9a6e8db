package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/stroymart/catalog-search/pkg/config"
)

// Config holds all configuration for the catalog search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_HTTP_PORT" envDefault:"8010"`

	// Search backend selection (elasticsearch or memory)
	SearchBackend string `env:"SEARCH_BACKEND" envDefault:"elasticsearch"`
	SearchURL     string `env:"SEARCH_URL" envDefault:"http://localhost:9200"`

	// Index layout
	SearchAlias string `env:"SEARCH_ALIAS" envDefault:"products_current"`
	IndexPrefix string `env:"INDEX_PREFIX" envDefault:"products"`
	SchemaPath  string `env:"INDEX_SCHEMA_PATH"`

	// Indexer
	BatchSize         int    `env:"BATCH_SIZE" envDefault:"1000"`
	MaxOldIndices     int    `env:"MAX_OLD_INDICES" envDefault:"2"`
	DocCountTolerance int    `env:"DOC_COUNT_TOLERANCE" envDefault:"10"`
	ReindexCron       string `env:"REINDEX_CRON" envDefault:"0 3 * * *"`

	// Query path
	RescoreWindow int `env:"RESCORE_WINDOW" envDefault:"50"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"catalog_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Dynamic data enrichment endpoint; empty disables enrichment.
	DynamicDataURL string `env:"DYNAMIC_DATA_URL"`

	// Kafka (indexer daemon mode)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

// PostgresDSN renders the connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDB, c.PostgresSSLMode,
	)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	if c.MaxOldIndices < 0 {
		return fmt.Errorf("invalid max old indices: %d", c.MaxOldIndices)
	}
	if c.DocCountTolerance < 0 {
		return fmt.Errorf("invalid doc count tolerance: %d", c.DocCountTolerance)
	}
	return nil
}

// Timeouts shared across the service. These mirror the per-operation
// deadlines carried by the backend and provider clients.
const (
	HTTPReadTimeout  = 15 * time.Second
	HTTPWriteTimeout = 25 * time.Second
	HTTPIdleTimeout  = 60 * time.Second
)
