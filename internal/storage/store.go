package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medifusion-server/internal/domain"
)

// Open returns the configured result store. The "none" driver yields a nil store and
// no error; callers treat a nil store as persistence disabled.
func Open(config domain.StorageConfig, logger *logrus.Logger) (domain.ResultStore, error) {
	switch config.Driver {
	case domain.StorageNone:
		logger.Info("Result persistence disabled")
		return nil, nil
	case domain.StoragePostgres:
		store, err := NewPostgresStoreFromURL(config.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres result store: %w", err)
		}
		logger.Info("Using PostgreSQL result store")
		return store, nil
	case domain.StorageSQLite, "":
		store, err := NewSQLiteStore(config.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite result store: %w", err)
		}
		logger.WithField("path", store.Path()).Info("Using SQLite result store")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", config.Driver)
	}
}
