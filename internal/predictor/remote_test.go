package predictor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifusion-server/internal/domain"
)

func TestRemotePredictor_Predict(t *testing.T) {
	var received remoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probability": 0.82, "label": 1}`))
	}))
	defer server.Close()

	p := NewRemotePredictor(RemoteConfig{BaseURL: server.URL + "/", Timeout: time.Second}, quietLogger())

	pred, err := p.Predict(context.Background(), domain.PredictionInput{
		PatientID: "P1",
		Features:  domain.FusedVector{TumorSizeCM: 6, HasBRCA1: 1},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.Prediction{Probability: 0.82, Label: 1}, pred)
	assert.Equal(t, "P1", received.PatientID)
	assert.Len(t, received.Features, 14)
	assert.Equal(t, 6.0, received.Features["tumor_size_cm"])
	assert.Equal(t, 1.0, received.Features["has_brca1"])
	assert.Equal(t, "remote:"+server.URL, p.Name())
}

func TestRemotePredictor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"Server error", http.StatusInternalServerError, "boom", "status 500"},
		{"Malformed body", http.StatusOK, "{", "decode"},
		{"Out of range probability", http.StatusOK, `{"probability": 2, "label": 1}`, "probability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewRemotePredictor(RemoteConfig{BaseURL: server.URL}, quietLogger())
			_, err := p.Predict(context.Background(), domain.PredictionInput{PatientID: "P1"})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRemotePredictor_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewRemotePredictor(RemoteConfig{BaseURL: server.URL, RateLimit: 100}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := p.Predict(context.Background(), domain.PredictionInput{PatientID: "P1"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	_, err := p.Predict(context.Background(), domain.PredictionInput{PatientID: "P1"})
	assert.ErrorIs(t, err, domain.ErrPredictorUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemotePredictor_CancelledContext(t *testing.T) {
	p := NewRemotePredictor(RemoteConfig{BaseURL: "http://127.0.0.1:1", RateLimit: 1}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Predict(ctx, domain.PredictionInput{})
	assert.Error(t, err)
}
