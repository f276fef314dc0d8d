package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const defaultJWTSecret = "dev-jwt-secret-change-in-production"

// Config holds all configuration for the Sitecast server
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Forecast    ForecastConfig `toml:"forecast"`
	Logging     LoggingConfig  `toml:"logging"`
	Auth        AuthConfig     `toml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "sqlite" or "surrealdb"
	Path      string `toml:"path"`    // sqlite database file
	Address   string `toml:"address"` // surrealdb ws://host:port/rpc
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ForecastConfig controls forecast job processing.
type ForecastConfig struct {
	DefaultHorizon  int    `toml:"default_horizon"` // hours
	MaxHorizon      int    `toml:"max_horizon"`
	Workers         int    `toml:"workers"`
	QueueSize       int    `toml:"queue_size"`
	CleanupInterval string `toml:"cleanup_interval"`
	RequeueInterval string `toml:"requeue_interval"` // sweep for pending jobs that missed the queue
	RetentionDays   int    `toml:"retention_days"`
	Seed            int64  `toml:"seed"` // 0 = time-based
}

// GetCleanupInterval parses the cleanup interval, defaulting to 1h
func (c *ForecastConfig) GetCleanupInterval() time.Duration {
	d, err := time.ParseDuration(c.CleanupInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// GetRequeueInterval parses the requeue sweep interval, defaulting to 15s
func (c *ForecastConfig) GetRequeueInterval() time.Duration {
	d, err := time.ParseDuration(c.RequeueInterval)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// GetWorkers returns the worker count, defaulting to 2
func (c *ForecastConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// AuthConfig holds bearer-token authentication configuration.
type AuthConfig struct {
	Enabled       bool   `toml:"enabled"`
	JWTSecret     string `toml:"jwt_secret"`
	TokenExpiry   string `toml:"token_expiry"` // duration string, default "24h"
	AdminEmail    string `toml:"admin_email"`
	AdminPassword string `toml:"admin_password"`
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			Path:      "data/sitecast.db",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "sitecast",
			Database:  "sitecast",
			Username:  "root",
			Password:  "root",
		},
		Forecast: ForecastConfig{
			DefaultHorizon:  24,
			MaxHorizon:      168,
			Workers:         2,
			QueueSize:       100,
			CleanupInterval: "1h",
			RequeueInterval: "15s",
			RetentionDays:   30,
		},
		Auth: AuthConfig{
			Enabled:     true,
			JWTSecret:   defaultJWTSecret,
			TokenExpiry: "24h",
			AdminEmail:  "admin@sitecast.local",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Outputs:    []string{"console"},
			FilePath:   "./logs/sitecast.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SITECAST_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("SITECAST_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("SITECAST_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("SITECAST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage overrides
	if v := os.Getenv("SITECAST_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SITECAST_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("SITECAST_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("SITECAST_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("SITECAST_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	if v := os.Getenv("SITECAST_FORECAST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Forecast.Workers = n
		}
	}

	// Auth overrides
	if v := os.Getenv("SITECAST_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Auth.Enabled = b
		}
	}
	if v := os.Getenv("SITECAST_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("SITECAST_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}
	if v := os.Getenv("SITECAST_ADMIN_EMAIL"); v != "" {
		config.Auth.AdminEmail = v
	}
	if v := os.Getenv("SITECAST_ADMIN_PASSWORD"); v != "" {
		config.Auth.AdminPassword = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the names of settings that must be provided
// before the server can run in production.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret {
			missing = append(missing, "auth.jwt_secret")
		}
		if c.Auth.AdminPassword == "" {
			missing = append(missing, "auth.admin_password")
		}
	}
	if c.Storage.Backend == "surrealdb" && c.Storage.Address == "" {
		missing = append(missing, "storage.address")
	}
	return missing
}
