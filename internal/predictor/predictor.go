// Package predictor provides domain.Predictor implementations: a YAML logistic model, a
// deterministic hash fallback, a remote scoring client, and a caching decorator.
package predictor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medifusion-server/internal/domain"
)

// New builds the configured predictor. A remote URL takes precedence over a model
// file; with neither, the hash fallback is used. When cache_size is positive the
// result is wrapped in a CachedPredictor, with a Redis tier if one is reachable.
// The returned cleanup func releases any connections and is never nil.
func New(ctx context.Context, config *domain.Config, logger *logrus.Logger) (domain.Predictor, func(), error) {
	cleanup := func() {}

	var base domain.Predictor
	switch {
	case config.Model.RemoteURL != "":
		base = NewRemotePredictor(RemoteConfig{
			BaseURL:   config.Model.RemoteURL,
			Timeout:   config.Model.RemoteTimeout,
			RateLimit: config.Model.RemoteRateLimit,
		}, logger)
	case config.Model.Path != "":
		model, err := LoadLogisticModel(config.Model.Path)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to load model: %w", err)
		}
		base = NewLogisticPredictor(model)
	default:
		base = NewHashPredictor()
	}

	logger.WithFields(logrus.Fields{
		"predictor":  base.Name(),
		"cache_size": config.Model.CacheSize,
	}).Info("Predictor configured")

	if config.Model.CacheSize <= 0 {
		return base, cleanup, nil
	}

	var shared PredictionCache
	if config.Cache.RedisURL != "" {
		redisCache, err := NewRedisCache(ctx, config.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis prediction cache unavailable, using memory cache only")
		} else {
			shared = redisCache
			cleanup = func() {
				if err := redisCache.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close Redis prediction cache")
				}
			}
		}
	}

	cached, err := NewCachedPredictor(base, config.Model.CacheSize, shared, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return cached, cleanup, nil
}
