// Package config loads service configuration from defaults, an optional YAML file and
// MEDIFUSION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/medifusion-server/internal/domain"
)

// EnvPrefix is the prefix of every environment override, e.g. MEDIFUSION_SERVER_PORT.
const EnvPrefix = "MEDIFUSION"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. configFile may be empty, in which case
// config.yaml is searched for in the working directory, ./config and /etc/medifusion.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/medifusion/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional unless one was named explicitly
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values. Every key needs a default so that
// AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.max_upload_bytes", 32<<20)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Model defaults
	v.SetDefault("model.path", "")
	v.SetDefault("model.remote_url", "")
	v.SetDefault("model.remote_timeout", "10s")
	v.SetDefault("model.remote_rate_limit", 20)
	v.SetDefault("model.cache_size", 1024)

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 4)

	// Storage defaults
	v.SetDefault("storage.driver", domain.StorageSQLite)
	v.SetDefault("storage.data_dir", DefaultDataDir())
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.migrations_path", "")

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "1h")
}

// DefaultDataDir returns ~/.medifusion, or ./data when no home directory is known.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "data"
	}
	return filepath.Join(homeDir, ".medifusion")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetModelConfig returns predictor configuration
func (m *Manager) GetModelConfig() *domain.ModelConfig {
	return &m.config.Model
}

// GetStorageConfig returns result storage configuration
func (m *Manager) GetStorageConfig() *domain.StorageConfig {
	return &m.config.Storage
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks a configuration for values the service cannot start with.
func Validate(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive: %d", config.Server.MaxUploadBytes)
	}
	if config.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative: %v", config.Server.RateLimit)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
		"error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	if config.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1: %d", config.Pipeline.Workers)
	}
	if config.Model.CacheSize < 0 {
		return fmt.Errorf("model cache size cannot be negative: %d", config.Model.CacheSize)
	}

	switch config.Storage.Driver {
	case domain.StorageSQLite:
		if config.Storage.DataDir == "" {
			return fmt.Errorf("storage data dir is required for sqlite")
		}
	case domain.StoragePostgres:
		if config.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case domain.StorageNone:
	default:
		return fmt.Errorf("invalid storage driver: %s", config.Storage.Driver)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
