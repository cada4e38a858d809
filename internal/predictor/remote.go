package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medifusion-server/internal/domain"
)

// RemoteConfig configures a RemotePredictor.
type RemoteConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per second
}

// remoteRequest is the body posted to {BaseURL}/predict.
type remoteRequest struct {
	PatientID string             `json:"patient_id"`
	Features  map[string]float64 `json:"features"`
}

// RemotePredictor calls an external scoring service. Calls are rate limited and guarded
// by a circuit breaker; an open breaker fails fast with domain.ErrPredictorUnavailable.
type RemotePredictor struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewRemotePredictor creates a new remote predictor client
func NewRemotePredictor(config RemoteConfig, logger *logrus.Logger) *RemotePredictor {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 20
	}

	p := &RemotePredictor{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		logger:    logger,
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-predictor",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return p
}

// Name implements domain.Predictor.
func (p *RemotePredictor) Name() string {
	return "remote:" + p.baseURL
}

// State returns the circuit breaker state.
func (p *RemotePredictor) State() gobreaker.State {
	return p.breaker.State()
}

// Predict implements domain.Predictor.
func (p *RemotePredictor) Predict(ctx context.Context, in domain.PredictionInput) (domain.Prediction, error) {
	if err := p.rateLimit.Wait(ctx); err != nil {
		return domain.Prediction{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.call(ctx, in)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Prediction{}, fmt.Errorf("%w: %v", domain.ErrPredictorUnavailable, err)
		}
		return domain.Prediction{}, err
	}
	return result.(domain.Prediction), nil
}

func (p *RemotePredictor) call(ctx context.Context, in domain.PredictionInput) (domain.Prediction, error) {
	body, err := json.Marshal(remoteRequest{
		PatientID: in.PatientID,
		Features:  in.Features.AsMap(),
	})
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("failed to create prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Prediction{}, fmt.Errorf("prediction service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var prediction domain.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return domain.Prediction{}, fmt.Errorf("failed to decode prediction response: %w", err)
	}
	if err := prediction.Validate(); err != nil {
		return domain.Prediction{}, err
	}
	return prediction, nil
}
