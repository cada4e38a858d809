// Package health runs readiness checks against the result store and predictor.
package health

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medifusion-server/internal/domain"
)

// State is the health of one component or of the whole service.
type State string

const (
	StateHealthy   State = "healthy"
	StateWarning   State = "warning"
	StateUnhealthy State = "unhealthy"
	StateUnknown   State = "unknown"
)

// Config controls check timeouts and result caching.
type Config struct {
	Timeout  time.Duration // per run
	CacheTTL time.Duration // reuse the last status for this long
}

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      State          `json:"status"`
	Message     string         `json:"message"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Status is the aggregated result of every registered check.
type Status struct {
	Overall     State                      `json:"overall"`
	Timestamp   time.Time                  `json:"timestamp"`
	Uptime      time.Duration              `json:"uptime"`
	Components  map[string]ComponentHealth `json:"components"`
	CheckCount  int64                      `json:"check_count"`
	LastChecked time.Time                  `json:"last_checked"`
}

// Check probes one component.
type Check interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// Checker runs registered checks in parallel and caches the aggregate.
type Checker struct {
	config  Config
	logger  *logrus.Logger
	started time.Time

	mutex  sync.Mutex
	checks []Check
	status *Status
}

// NewChecker creates a checker with no checks registered.
func NewChecker(config Config, logger *logrus.Logger) *Checker {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	return &Checker{
		config:  config,
		logger:  logger,
		started: time.Now(),
	}
}

// RegisterCheck adds a check.
func (h *Checker) RegisterCheck(check Check) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checks = append(h.checks, check)
	h.status = nil
}

// Status returns the cached status, running the checks when it has expired.
func (h *Checker) Status(ctx context.Context) Status {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.status != nil && time.Since(h.status.LastChecked) < h.config.CacheTTL {
		return h.copyStatus()
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	startTime := time.Now()
	results := make([]ComponentHealth, len(h.checks))

	var wg sync.WaitGroup
	for i, check := range h.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}(i, check)
	}
	wg.Wait()

	components := make(map[string]ComponentHealth, len(results))
	overall := StateHealthy
	var unhealthy []string
	for _, result := range results {
		components[result.Name] = result
		switch result.Status {
		case StateUnhealthy:
			overall = StateUnhealthy
			unhealthy = append(unhealthy, result.Name)
		case StateWarning:
			if overall == StateHealthy {
				overall = StateWarning
			}
		}
	}

	var count int64 = 1
	if h.status != nil {
		count = h.status.CheckCount + 1
	}
	h.status = &Status{
		Overall:     overall,
		Timestamp:   startTime,
		Uptime:      time.Since(h.started),
		Components:  components,
		CheckCount:  count,
		LastChecked: time.Now(),
	}

	if overall != StateHealthy {
		h.logger.WithFields(logrus.Fields{
			"overall_status":       overall,
			"unhealthy_components": unhealthy,
		}).Warn("Health check completed with issues")
	} else {
		h.logger.Debug("Health check completed successfully")
	}

	return h.copyStatus()
}

func (h *Checker) copyStatus() Status {
	status := *h.status
	status.Components = make(map[string]ComponentHealth, len(h.status.Components))
	for k, v := range h.status.Components {
		status.Components[k] = v
	}
	return status
}

// StoreCheck verifies the result store answers queries.
type StoreCheck struct {
	store domain.ResultStore
}

// NewStoreCheck creates a check for store.
func NewStoreCheck(store domain.ResultStore) *StoreCheck {
	return &StoreCheck{store: store}
}

func (s *StoreCheck) Name() string { return "result_store" }

func (s *StoreCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()

	count, err := s.store.Count(ctx)
	if err != nil {
		return ComponentHealth{
			Name:        s.Name(),
			Status:      StateUnhealthy,
			Message:     "Result store query failed",
			LastChecked: time.Now(),
			Duration:    time.Since(start),
			Error:       err.Error(),
		}
	}

	return ComponentHealth{
		Name:        s.Name(),
		Status:      StateHealthy,
		Message:     "Result store healthy",
		LastChecked: time.Now(),
		Duration:    time.Since(start),
		Metadata:    map[string]any{"stored_results": count},
	}
}

// probePatientID identifies the synthetic input scored by PredictorCheck.
const probePatientID = "__healthcheck__"

// PredictorCheck scores a synthetic vector and validates the output.
type PredictorCheck struct {
	predictor domain.Predictor
}

// NewPredictorCheck creates a check for predictor.
func NewPredictorCheck(predictor domain.Predictor) *PredictorCheck {
	return &PredictorCheck{predictor: predictor}
}

func (p *PredictorCheck) Name() string { return "predictor" }

func (p *PredictorCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()

	if p.predictor == nil {
		return ComponentHealth{
			Name:        p.Name(),
			Status:      StateUnhealthy,
			Message:     "No predictor configured",
			LastChecked: time.Now(),
			Duration:    time.Since(start),
			Error:       domain.ErrPredictorUnavailable.Error(),
		}
	}

	prediction, err := p.predictor.Predict(ctx, domain.PredictionInput{
		PatientID: probePatientID,
		Features: domain.FusedVector{
			TumorSizeCM: domain.DefaultTumorSizeCM,
			GrowthRate:  domain.DefaultGrowthRate,
		},
	})
	if err == nil {
		err = prediction.Validate()
	}
	if err != nil {
		return ComponentHealth{
			Name:        p.Name(),
			Status:      StateUnhealthy,
			Message:     fmt.Sprintf("Predictor %s failed", p.predictor.Name()),
			LastChecked: time.Now(),
			Duration:    time.Since(start),
			Metadata:    map[string]any{"predictor": p.predictor.Name()},
			Error:       err.Error(),
		}
	}

	return ComponentHealth{
		Name:        p.Name(),
		Status:      StateHealthy,
		Message:     fmt.Sprintf("Predictor %s healthy", p.predictor.Name()),
		LastChecked: time.Now(),
		Duration:    time.Since(start),
		Metadata:    map[string]any{"predictor": p.predictor.Name()},
	}
}

// RuntimeCheck reports goroutine and heap figures. It warns above MaxGoroutines.
type RuntimeCheck struct {
	MaxGoroutines int
}

func (r *RuntimeCheck) Name() string { return "runtime" }

func (r *RuntimeCheck) Check(_ context.Context) ComponentHealth {
	start := time.Now()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()

	status, message := StateHealthy, "Runtime healthy"
	if r.MaxGoroutines > 0 && goroutines > r.MaxGoroutines {
		status = StateWarning
		message = fmt.Sprintf("High goroutine count: %d", goroutines)
	}

	return ComponentHealth{
		Name:        r.Name(),
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Duration:    time.Since(start),
		Metadata: map[string]any{
			"goroutines":       goroutines,
			"heap_alloc_bytes": mem.HeapAlloc,
			"num_gc":           mem.NumGC,
		},
	}
}
