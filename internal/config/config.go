package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string // empty disables API auth
	Database  DatabaseConfig
	Events    EventsConfig
	Lock      LockConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// EventsConfig holds run event publishing configuration
type EventsConfig struct {
	NATSURL     string // empty disables NATS publishing
	NATSSubject string
}

// LockConfig selects how concurrent runs against one device are serialized
type LockConfig struct {
	// DSN of a PostgreSQL instance used for advisory locks.
	// When empty, locks are process-local.
	DSN string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3220"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "eckclock"),
			Alter:    getBoolEnv("DB_ALTER", false),
		},
		Events: EventsConfig{
			NATSURL:     os.Getenv("NATS_URL"),
			NATSSubject: getEnv("NATS_SUBJECT", "timeclock.sync.finished"),
		},
		Lock: LockConfig{
			DSN: os.Getenv("LOCK_DSN"),
		},
	}, nil
}

// IsProduction reports whether NODE_ENV is production
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
