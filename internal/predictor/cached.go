package predictor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/medifusion-server/internal/domain"
)

// PredictionCache is a shared second cache tier, such as Redis.
type PredictionCache interface {
	// Get returns found=false on a miss.
	Get(ctx context.Context, key string) (domain.Prediction, bool, error)
	Set(ctx context.Context, key string, prediction domain.Prediction) error
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	SharedHits   int64 `json:"shared_hits"`
	SharedMisses int64 `json:"shared_misses"`
	Predictions  int64 `json:"predictions"`
	Errors       int64 `json:"errors"`
}

// CachedPredictor memoizes an inner predictor. Lookups go memory LRU first, then the
// optional shared tier, then the inner predictor. Shared tier failures are logged and
// never fail a prediction.
type CachedPredictor struct {
	inner  domain.Predictor
	memory *lru.Cache[string, domain.Prediction]
	shared PredictionCache
	logger *logrus.Logger

	memoryHits   atomic.Int64
	memoryMisses atomic.Int64
	sharedHits   atomic.Int64
	sharedMisses atomic.Int64
	predictions  atomic.Int64
	errors       atomic.Int64
}

// NewCachedPredictor wraps inner with an LRU of size entries. shared may be nil.
func NewCachedPredictor(inner domain.Predictor, size int, shared PredictionCache, logger *logrus.Logger) (*CachedPredictor, error) {
	memory, err := lru.New[string, domain.Prediction](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction cache: %w", err)
	}
	return &CachedPredictor{
		inner:  inner,
		memory: memory,
		shared: shared,
		logger: logger,
	}, nil
}

// Name implements domain.Predictor.
func (c *CachedPredictor) Name() string {
	return c.inner.Name()
}

// Predict implements domain.Predictor.
func (c *CachedPredictor) Predict(ctx context.Context, in domain.PredictionInput) (domain.Prediction, error) {
	key := c.cacheKey(in)

	if p, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		return p, nil
	}
	c.memoryMisses.Add(1)

	if c.shared != nil {
		p, found, err := c.shared.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.WithError(err).WithField("patient_id", in.PatientID).Warn("Shared prediction cache read failed")
		case found:
			c.sharedHits.Add(1)
			c.memory.Add(key, p)
			return p, nil
		default:
			c.sharedMisses.Add(1)
		}
	}

	c.predictions.Add(1)
	p, err := c.inner.Predict(ctx, in)
	if err != nil {
		c.errors.Add(1)
		return domain.Prediction{}, err
	}

	c.memory.Add(key, p)
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, p); err != nil {
			c.logger.WithError(err).WithField("patient_id", in.PatientID).Warn("Shared prediction cache write failed")
		}
	}
	return p, nil
}

// Stats returns a snapshot of cache counters.
func (c *CachedPredictor) Stats() CacheStats {
	return CacheStats{
		MemoryHits:   c.memoryHits.Load(),
		MemoryMisses: c.memoryMisses.Load(),
		SharedHits:   c.sharedHits.Load(),
		SharedMisses: c.sharedMisses.Load(),
		Predictions:  c.predictions.Load(),
		Errors:       c.errors.Load(),
	}
}

// Purge empties the in-memory tier.
func (c *CachedPredictor) Purge() {
	c.memory.Purge()
}

// cacheKey digests the predictor name, patient id and every fused feature.
func (c *CachedPredictor) cacheKey(in domain.PredictionInput) string {
	h := sha256.New()
	h.Write([]byte(c.inner.Name()))
	h.Write([]byte{0})
	h.Write([]byte(in.PatientID))
	h.Write([]byte{0})
	var buf [8]byte
	for _, v := range in.Features.Values(domain.FusedFeatureNames) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
