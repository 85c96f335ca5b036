package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SyncConfig holds device synchronization tuning
type SyncConfig struct {
	// ============ DEVICE PROTOCOL ============
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"` // per protocol operation
	DefaultPort    int           `yaml:"default_port"`
	MaxChunks      int           `yaml:"max_chunks"` // upper bound on data chunks per reply

	// ============ RECONCILIATION ============
	DedupeWindow     time.Duration `yaml:"dedupe_window"`
	ReconcileWorkers int           `yaml:"reconcile_workers"`
	DefaultTimezone  string        `yaml:"default_timezone"` // used when a device has none configured

	// ============ AUDIT ============
	ErrorLogLimit int `yaml:"error_log_limit"` // error lines kept in sync_logs.error_message
}

// LoadSyncConfig loads sync configuration from file (SYNC_CONFIG_PATH) or environment.
// File values override environment defaults; missing keys keep them.
func LoadSyncConfig() *SyncConfig {
	cfg := getDefaultSyncConfig()

	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if err := loadSyncConfigFromFile(configPath, cfg); err != nil {
			log.Printf("⚠️ Sync config: ignoring %s: %v", configPath, err)
			return getDefaultSyncConfig()
		}
	}

	cfg.normalize()
	return cfg
}

// loadSyncConfigFromFile overlays YAML values from path onto cfg
func loadSyncConfigFromFile(path string, cfg *SyncConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		DialTimeout:    getDurationEnv("DEVICE_DIAL_TIMEOUT", 5*time.Second),
		CommandTimeout: getDurationEnv("DEVICE_COMMAND_TIMEOUT", 5*time.Second),
		DefaultPort:    getIntEnv("DEVICE_DEFAULT_PORT", 4370),
		MaxChunks:      getIntEnv("DEVICE_MAX_CHUNKS", 4096),

		DedupeWindow:     getDurationEnv("SYNC_DEDUPE_WINDOW", 60*time.Second),
		ReconcileWorkers: getIntEnv("SYNC_WORKERS", 4),
		DefaultTimezone:  getEnv("SYNC_DEFAULT_TIMEZONE", "UTC"),

		ErrorLogLimit: getIntEnv("SYNC_ERROR_LOG_LIMIT", 5),
	}
}

// normalize replaces non-positive values with defaults
func (c *SyncConfig) normalize() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Second
	}
	if c.DefaultPort <= 0 || c.DefaultPort > 65535 {
		c.DefaultPort = 4370
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = 4096
	}
	if c.DedupeWindow < 0 {
		c.DedupeWindow = 60 * time.Second
	}
	if c.ReconcileWorkers <= 0 {
		c.ReconcileWorkers = 1
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}
	if c.ErrorLogLimit <= 0 {
		c.ErrorLogLimit = 5
	}
}

// Location resolves DefaultTimezone, falling back to UTC
func (c *SyncConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		log.Printf("⚠️ Unknown timezone %q, using UTC", c.DefaultTimezone)
		return time.UTC
	}
	return loc
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
