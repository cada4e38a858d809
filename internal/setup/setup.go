// Package setup writes a starter configuration and reports whether an installation is
// ready to serve.
package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medifusion-server/internal/config"
	"github.com/medifusion-server/internal/domain"
	"github.com/medifusion-server/internal/predictor"
)

// ErrConfigExists is returned by InitConfig when the target file exists and Force is unset.
var ErrConfigExists = errors.New("config file already exists")

// FileConfig is the subset of configuration written by InitConfig. Keys match the ones
// read by the config package.
type FileConfig struct {
	Environment string            `yaml:"environment"`
	Server      FileServerConfig  `yaml:"server"`
	Model       FileModelConfig   `yaml:"model"`
	Storage     FileStorageConfig `yaml:"storage"`
}

// FileServerConfig is the server section of FileConfig.
type FileServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// FileModelConfig is the model section of FileConfig.
type FileModelConfig struct {
	Path      string `yaml:"path,omitempty"`
	RemoteURL string `yaml:"remote_url,omitempty"`
}

// FileStorageConfig is the storage section of FileConfig.
type FileStorageConfig struct {
	Driver      string `yaml:"driver"`
	DataDir     string `yaml:"data_dir"`
	PostgresURL string `yaml:"postgres_url,omitempty"`
}

// Options contains options for InitConfig.
type Options struct {
	DataDir     string
	Driver      string
	PostgresURL string
	ModelPath   string
	RemoteURL   string
	Port        int
	Force       bool // overwrite an existing file
}

// DefaultConfigPath returns config.yaml inside the default data directory.
func DefaultConfigPath() string {
	return filepath.Join(config.DefaultDataDir(), "config.yaml")
}

// InitConfig writes a starter config file to path and creates the data directory.
func InitConfig(path string, opts Options) (*FileConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if !opts.Force {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	fc := &FileConfig{
		Environment: "development",
		Server:      FileServerConfig{Host: "0.0.0.0", Port: opts.Port},
		Model:       FileModelConfig{Path: opts.ModelPath, RemoteURL: opts.RemoteURL},
		Storage: FileStorageConfig{
			Driver:      opts.Driver,
			DataDir:     opts.DataDir,
			PostgresURL: opts.PostgresURL,
		},
	}
	if fc.Server.Port == 0 {
		fc.Server.Port = 8080
	}
	if fc.Storage.Driver == "" {
		fc.Storage.Driver = domain.StorageSQLite
	}
	if fc.Storage.DataDir == "" {
		fc.Storage.DataDir = config.DefaultDataDir()
	}

	if err := EnsureDataDir(fc.Storage.DataDir); err != nil {
		return nil, err
	}
	if err := SaveConfig(path, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// LoadConfig reads a config file written by SaveConfig.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &fc, nil
}

// SaveConfig writes fc as YAML, creating parent directories.
func SaveConfig(path string, fc *FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// EnsureDataDir creates the data directory and its exports subdirectory.
func EnsureDataDir(dataDir string) error {
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	if err := os.MkdirAll(filepath.Join(dataDir, "exports"), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Status represents the current setup status.
type Status struct {
	DataDir        string   `json:"data_dir"`
	DataDirExists  bool     `json:"data_dir_exists"`
	StorageDriver  string   `json:"storage_driver"`
	DatabasePath   string   `json:"database_path,omitempty"`
	DatabaseExists bool     `json:"database_exists"`
	Predictor      string   `json:"predictor"`
	ModelPath      string   `json:"model_path,omitempty"`
	ModelValid     bool     `json:"model_valid"`
	Issues         []string `json:"issues"`
}

// Predictor kinds reported by GetStatus.
const (
	PredictorRemote   = "remote"
	PredictorLogistic = "logistic"
	PredictorHash     = "hash-fallback"
)

// Issues containing this marker are warnings; the server fixes them on first run.
const createdOnFirstRun = "will be created on first run"

// GetStatus inspects the filesystem and model for cfg.
func GetStatus(cfg *domain.Config) *Status {
	status := &Status{
		DataDir:       cfg.Storage.DataDir,
		StorageDriver: cfg.Storage.Driver,
		Issues:        []string{},
	}

	if _, err := os.Stat(status.DataDir); err == nil {
		status.DataDirExists = true
	} else if status.StorageDriver == domain.StorageSQLite {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory %s: %s", createdOnFirstRun, status.DataDir))
	}

	if status.StorageDriver == domain.StorageSQLite {
		status.DatabasePath = cfg.Storage.SQLitePath()
		if _, err := os.Stat(status.DatabasePath); err == nil {
			status.DatabaseExists = true
		}
	}

	switch {
	case cfg.Model.RemoteURL != "":
		status.Predictor = PredictorRemote
	case cfg.Model.Path != "":
		status.Predictor = PredictorLogistic
		status.ModelPath = cfg.Model.Path
		if _, err := predictor.LoadLogisticModel(cfg.Model.Path); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Model file unusable: %v", err))
		} else {
			status.ModelValid = true
		}
	default:
		status.Predictor = PredictorHash
	}

	return status
}

// Validate checks cfg and the installation it describes. ok is true when every issue is
// a warning.
func Validate(cfg *domain.Config) (bool, []string) {
	var issues []string
	if err := config.Validate(cfg); err != nil {
		issues = append(issues, err.Error())
	}
	issues = append(issues, GetStatus(cfg).Issues...)

	return allWarnings(issues), issues
}

// allWarnings returns true if all issues are just warnings (not errors).
func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(issue, createdOnFirstRun) {
			return false
		}
	}
	return true
}
