package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

// Database is the subset of settings every binary that touches Postgres needs.
type Database struct {
	DatabaseURL        string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns     int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int    `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int    `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectAttempts  int    `env:"DB_CONNECT_ATTEMPTS" envDefault:"30"`
}

type Config struct {
	Database

	JWTSecret        string `env:"JWT_SECRET"`
	WebhookSecret    string `env:"WEBHOOK_SECRET"`
	InternalAPIToken string `env:"INTERNAL_API_TOKEN"`

	ProviderURL     string        `env:"PROVIDER_URL" envDefault:"http://mock-provider:8081"`
	ProviderAPIKey  string        `env:"PROVIDER_API_KEY"`
	ProviderRPS     float64       `env:"PROVIDER_RPS" envDefault:"20"`
	ProviderBurst   int           `env:"PROVIDER_BURST" envDefault:"5"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"5s"`

	Currency       string `env:"CURRENCY" envDefault:"USD"`
	PlatformFeePct string `env:"PLATFORM_FEE_PCT" envDefault:"0"`

	WebhookPollInterval time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"2s"`
	WebhookBatchSize    int           `env:"WEBHOOK_BATCH_SIZE" envDefault:"20"`
	WebhookMaxAttempts  int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"8"`
	WebhookClaimTimeout time.Duration `env:"WEBHOOK_CLAIM_TIMEOUT" envDefault:"5m"`

	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepStaleAfter time.Duration `env:"SWEEP_STALE_AFTER" envDefault:"15m"`
	SweepBatchSize  int           `env:"SWEEP_BATCH_SIZE" envDefault:"50"`

	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func LoadDatabase() (*Database, error) {
	db, err := env.ParseAs[Database]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadDatabase: %w", err)
	}
	return &db, nil
}

func (c *Config) validate() error {
	if !domain.Currency(c.Currency).IsValid() {
		return fmt.Errorf("CURRENCY %q is not an ISO 4217 code", c.Currency)
	}
	if _, err := c.PlatformFeeBasisPoints(); err != nil {
		return err
	}
	if c.ProviderRPS <= 0 {
		return errors.New("PROVIDER_RPS must be positive")
	}
	if c.WebhookMaxAttempts < 1 {
		return errors.New("WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// ValidateAPI checks the secrets only the HTTP server needs.
func (c *Config) ValidateAPI() error {
	var missing []error
	if c.JWTSecret == "" {
		missing = append(missing, errors.New("JWT_SECRET is required"))
	}
	if c.WebhookSecret == "" {
		missing = append(missing, errors.New("WEBHOOK_SECRET is required"))
	}
	if c.InternalAPIToken == "" {
		missing = append(missing, errors.New("INTERNAL_API_TOKEN is required"))
	}
	return errors.Join(missing...)
}

// PlatformFeeBasisPoints parses PLATFORM_FEE_PCT ("2.5" = 2.50%) into basis points.
// A fee of 100% or more would leave nothing to deliver and is rejected.
func (c *Config) PlatformFeeBasisPoints() (int64, error) {
	d, err := decimal.NewFromString(c.PlatformFeePct)
	if err != nil {
		return 0, fmt.Errorf("PLATFORM_FEE_PCT %q: %w", c.PlatformFeePct, err)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return 0, fmt.Errorf("PLATFORM_FEE_PCT %q must be in [0, 100)", c.PlatformFeePct)
	}
	bp, err := domain.ParsePercentage(c.PlatformFeePct)
	if err != nil {
		return 0, fmt.Errorf("PLATFORM_FEE_PCT %q: %w", c.PlatformFeePct, err)
	}
	return bp, nil
}
