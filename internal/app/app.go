// Package app wires configuration into a ready analysis pipeline shared by the server
// and CLI binaries.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medifusion-server/internal/database"
	"github.com/medifusion-server/internal/domain"
	"github.com/medifusion-server/internal/predictor"
	"github.com/medifusion-server/internal/service"
	"github.com/medifusion-server/internal/storage"
)

// App holds the long-lived components built from a configuration.
type App struct {
	Predictor domain.Predictor
	Store     domain.ResultStore // nil when persistence is disabled
	Analysis  *service.AnalysisService

	closePredictor func()
	logger         *logrus.Logger
}

// New builds the predictor, result store and analysis service. PostgreSQL schemas are
// migrated before the store is opened.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	p, closePredictor, err := predictor.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create predictor: %w", err)
	}

	if cfg.Storage.Driver == domain.StoragePostgres {
		if err := Migrate(ctx, cfg.Storage, logger); err != nil {
			closePredictor()
			return nil, err
		}
	}

	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		closePredictor()
		return nil, err
	}

	opts := []service.AnalysisOption{service.WithWorkers(cfg.Pipeline.Workers)}
	if store != nil {
		opts = append(opts, service.WithResultStore(store))
	}

	logger.WithFields(logrus.Fields{
		"predictor": p.Name(),
		"workers":   cfg.Pipeline.Workers,
		"storage":   cfg.Storage.Driver,
	}).Info("Analysis pipeline ready")

	return &App{
		Predictor:      p,
		Store:          store,
		Analysis:       service.NewAnalysisService(logger, p, opts...),
		closePredictor: closePredictor,
		logger:         logger,
	}, nil
}

// Migrate applies pending PostgreSQL migrations.
func Migrate(ctx context.Context, cfg domain.StorageConfig, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(cfg.PostgresURL, cfg.MigrationsPath, logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the store and predictor resources.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close result store")
		}
	}
	a.closePredictor()
}
