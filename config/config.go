package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/keeper/core"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// AppEnv selects the logger flavour ("development" or "production").
	AppEnv string `mapstructure:"APP_ENV"`
	// HTTPAddr is the address the HTTP server listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// RedisURL is the Redis instance holding the session ledger and event streams.
	// When empty an in-memory ledger is used.
	RedisURL string `mapstructure:"REDIS_URL"`
	// DatabaseURL is the Postgres DSN for users and bonds.
	// When empty an in-memory user store is used.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	AuthTokenSecret    string `mapstructure:"AUTH_TOKEN_SECRET"`
	AuthTokenTTL       string `mapstructure:"AUTH_TOKEN_EXPIRATION_TIME"`
	RefreshTokenSecret string `mapstructure:"REFRESH_TOKEN_SECRET"`
	RefreshTokenTTL    string `mapstructure:"REFRESH_TOKEN_EXPIRATION_TIME"`
	BondTokenSecret    string `mapstructure:"BOND_TOKEN_SECRET"`
	BondTokenTTL       string `mapstructure:"BOND_TOKEN_EXPIRATION_TIME"`

	// MaxBonds caps the number of keepers a patient can bond with.
	MaxBonds int `mapstructure:"MAX_BONDS"`
	// LedgerSweepInterval is how often expired sessions are deleted.
	LedgerSweepInterval string `mapstructure:"LEDGER_SWEEP_INTERVAL"`

	// IdentityKey, IdentityIssuer and IdentityAudience configure the
	// external identity provider tokens accepted at sign-in.
	IdentityKey      string `mapstructure:"IDENTITY_KEY"`
	IdentityIssuer   string `mapstructure:"IDENTITY_ISSUER"`
	IdentityAudience string `mapstructure:"IDENTITY_AUDIENCE"`
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":9000")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTH_TOKEN_SECRET", "")
	v.SetDefault("AUTH_TOKEN_EXPIRATION_TIME", "1h")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION_TIME", "720h") // 30d
	v.SetDefault("BOND_TOKEN_SECRET", "")
	v.SetDefault("BOND_TOKEN_EXPIRATION_TIME", "5m")
	v.SetDefault("MAX_BONDS", 5)
	v.SetDefault("LEDGER_SWEEP_INTERVAL", "10m")
	v.SetDefault("IDENTITY_KEY", "")
	v.SetDefault("IDENTITY_ISSUER", "")
	v.SetDefault("IDENTITY_AUDIENCE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that required values are present and well formed.
func (c *Config) Validate() error {
	if c.AuthTokenSecret == "" || c.RefreshTokenSecret == "" || c.BondTokenSecret == "" {
		return errors.New("config: AUTH_TOKEN_SECRET, REFRESH_TOKEN_SECRET and BOND_TOKEN_SECRET must be set")
	}
	if c.AuthTokenSecret == c.RefreshTokenSecret ||
		c.AuthTokenSecret == c.BondTokenSecret ||
		c.RefreshTokenSecret == c.BondTokenSecret {
		return errors.New("config: signing secrets must differ per token kind")
	}
	if c.IdentityKey == "" || c.IdentityIssuer == "" {
		return errors.New("config: IDENTITY_KEY and IDENTITY_ISSUER must be set")
	}
	if c.MaxBonds < 1 {
		return fmt.Errorf("config: MAX_BONDS must be positive, got %d", c.MaxBonds)
	}

	if _, err := c.Policies(); err != nil {
		return err
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	return nil
}

// Policies returns the signing policy of every token domain.
func (c *Config) Policies() (map[core.Domain]core.DomainPolicy, error) {
	access, err := parseTTL("AUTH_TOKEN_EXPIRATION_TIME", c.AuthTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := parseTTL("REFRESH_TOKEN_EXPIRATION_TIME", c.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	bond, err := parseTTL("BOND_TOKEN_EXPIRATION_TIME", c.BondTokenTTL)
	if err != nil {
		return nil, err
	}

	return map[core.Domain]core.DomainPolicy{
		core.DomainAccess:  {Secret: []byte(c.AuthTokenSecret), TTL: access},
		core.DomainRefresh: {Secret: []byte(c.RefreshTokenSecret), TTL: refresh},
		core.DomainBonding: {Secret: []byte(c.BondTokenSecret), TTL: bond},
	}, nil
}

// SweepInterval returns LedgerSweepInterval as a duration.
func (c *Config) SweepInterval() (time.Duration, error) {
	return parseTTL("LEDGER_SWEEP_INTERVAL", c.LedgerSweepInterval)
}

func parseTTL(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}
