package domain

import (
	"context"
	"io"
)

// Predictor turns a fused vector into a malignancy probability and label.
// Implementations must be safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, in PredictionInput) (Prediction, error)
	// Name identifies the predictor in logs and health output.
	Name() string
}

// ResultStore persists processed patient results.
type ResultStore interface {
	// Save stores a result, assigning ID and CreatedAt when unset.
	Save(ctx context.Context, record *ResultRecord) error

	// Get retrieves a result by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*ResultRecord, error)

	// List returns results, newest first, with pagination.
	List(ctx context.Context, limit, offset int) ([]*ResultRecord, error)

	// Count returns the total number of stored results.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes every stored result to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetModelConfig() *ModelConfig
	GetStorageConfig() *StorageConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
