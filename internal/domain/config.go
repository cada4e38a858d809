package domain

import (
	"path/filepath"
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Model       ModelConfig    `mapstructure:"model"`
	Pipeline    PipelineConfig `mapstructure:"pipeline"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Cache       CacheConfig    `mapstructure:"cache"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `mapstructure:"rate_burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ModelConfig selects and configures the predictor.
type ModelConfig struct {
	Path            string        `mapstructure:"path"`       // YAML logistic model; empty uses the hash fallback
	RemoteURL       string        `mapstructure:"remote_url"` // remote scoring endpoint; takes precedence over Path
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`
	RemoteRateLimit int           `mapstructure:"remote_rate_limit"` // requests per second
	CacheSize       int           `mapstructure:"cache_size"`        // 0 disables the in-memory cache
}

// PipelineConfig controls batch processing.
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

// Storage drivers
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageNone     = "none"
)

// StorageConfig configures result persistence.
type StorageConfig struct {
	Driver         string `mapstructure:"driver"`
	DataDir        string `mapstructure:"data_dir"`
	PostgresURL    string `mapstructure:"postgres_url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// SQLitePath returns the path of the SQLite results database.
func (c *StorageConfig) SQLitePath() string {
	return filepath.Join(c.DataDir, "results.db")
}

// CacheConfig represents the optional Redis prediction cache.
type CacheConfig struct {
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}
