// Package config loads service settings from environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all service settings.
type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	Database Database
	SQLite   SQLite
	Auth     Auth
	AMQP     AMQP
	Log      Log
	Payment  Payment
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"DB_NAME" default:"conference"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"20"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// SQLite holds settings for the embedded store.
type SQLite struct {
	Path string `envconfig:"SQLITE_PATH" default:"conference.db"`
}

// Auth holds bearer token settings.
type Auth struct {
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// AMQP holds lifecycle event publishing settings. An empty URL disables
// publishing.
type AMQP struct {
	URL      string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"conference.registrations"`
}

// Log holds logger settings.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Payment holds simulated gateway settings.
type Payment struct {
	// DeclineAbove makes the gateway decline charges larger than this amount.
	// Zero accepts every charge.
	DeclineAbove int64  `envconfig:"PAYMENT_DECLINE_ABOVE" default:"0"`
	Currency     string `envconfig:"PAYMENT_CURRENCY" default:"IDR"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks settings that envconfig cannot express.
func (c *Config) Validate() error {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.Payment.DeclineAbove < 0 {
		return fmt.Errorf("PAYMENT_DECLINE_ABOVE cannot be negative")
	}
	return nil
}
