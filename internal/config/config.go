// Package config provides configuration management for lattice.
// Settings are loaded from environment variables with the LATTICE_ prefix,
// with sensible defaults for everything. When LATTICE_CONFIG names a YAML
// file, its values overlay the environment-derived configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the lattice server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`
	Backup   BackupConfig   `yaml:"backup"`
	Platform PlatformConfig `yaml:"platform"`
	Tools    ToolsConfig    `yaml:"tools"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 7171)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains backing store configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"storage_engine"` // sqlite or postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`      // Data directory for sqlite (default: ./data)
	PostgresURL   string `yaml:"postgres_url"`   // Connection string when the engine is postgres
}

// SessionConfig contains session registry tuning.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`            // Idle session lifetime (default: 30m)
	ReapInterval  time.Duration `yaml:"reap_interval"`  // Sweep interval (default: 1m)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	SecurityMode string  `yaml:"security_mode"` // development or production (default: development)
	APIToken     string  `yaml:"api_token"`     // Bearer token required in production mode
	RateLimit    float64 `yaml:"rate_limit"`    // Requests per second (default: 100)
	RateBurst    int     `yaml:"rate_burst"`    // Burst allowance (default: 200)
}

// BackupConfig contains snapshot configuration for the sqlite store.
type BackupConfig struct {
	Enabled   bool          `yaml:"enabled"`   // Enable periodic snapshots (default: false)
	Interval  time.Duration `yaml:"interval"`  // Snapshot interval (default: 24h)
	Path      string        `yaml:"path"`      // Snapshot directory (default: ./backups)
	Retention int           `yaml:"retention"` // Snapshots to keep (default: 7)
}

// PlatformConfig contains the external platform API roots.
type PlatformConfig struct {
	DeployURL   string `yaml:"deploy_url"`
	DatabaseURL string `yaml:"database_url"`
	SourceURL   string `yaml:"source_url"`
}

// ToolsConfig contains tool group settings.
type ToolsConfig struct {
	FSRoot string `yaml:"fs_root"` // Workspace root for the filesystem tools (default: ./workspace)
}

// LoadConfig loads configuration from LATTICE_* environment variables, then
// overlays the YAML file named by LATTICE_CONFIG when present.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()

	if path := os.Getenv("LATTICE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = 30 * time.Minute
	}
	if cfg.Session.ReapInterval <= 0 {
		cfg.Session.ReapInterval = time.Minute
	}
	return cfg, nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("LATTICE_PORT", 7171),
			Host: getEnv("LATTICE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("LATTICE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("LATTICE_DATA_PATH", "./data"),
			PostgresURL:   getEnv("LATTICE_POSTGRES_URL", ""),
		},
		Session: SessionConfig{
			TTL:          getEnvDuration("LATTICE_SESSION_TTL", 30*time.Minute),
			ReapInterval: getEnvDuration("LATTICE_SESSION_REAP_INTERVAL", time.Minute),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("LATTICE_SECURITY_MODE", "development"),
			APIToken:     getEnv("LATTICE_API_TOKEN", ""),
			RateLimit:    float64(getEnvInt("LATTICE_RATE_LIMIT", 100)),
			RateBurst:    getEnvInt("LATTICE_RATE_BURST", 200),
		},
		Backup: BackupConfig{
			Enabled:   getEnvBool("LATTICE_BACKUP_ENABLED", false),
			Interval:  getEnvDuration("LATTICE_BACKUP_INTERVAL", 24*time.Hour),
			Path:      getEnv("LATTICE_BACKUP_PATH", "./backups"),
			Retention: getEnvInt("LATTICE_BACKUP_RETENTION", 7),
		},
		Platform: PlatformConfig{
			DeployURL:   getEnv("LATTICE_DEPLOY_URL", "https://api.vercel.com"),
			DatabaseURL: getEnv("LATTICE_DATABASE_URL", "https://console.neon.tech/api/v2"),
			SourceURL:   getEnv("LATTICE_SOURCE_URL", "https://api.github.com"),
		},
		Tools: ToolsConfig{
			FSRoot: getEnv("LATTICE_FS_ROOT", "./workspace"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30m", "24h") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
