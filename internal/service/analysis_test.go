package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medifusion-server/internal/domain"
)

// MockPredictor is a mock implementation of domain.Predictor
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, in domain.PredictionInput) (domain.Prediction, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.Prediction), args.Error(1)
}

func (m *MockPredictor) Name() string {
	return "mock"
}

// MockResultStore is a mock implementation of domain.ResultStore
type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) Save(ctx context.Context, record *domain.ResultRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockResultStore) Get(ctx context.Context, id string) (*domain.ResultRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResultRecord), args.Error(1)
}

func (m *MockResultStore) List(ctx context.Context, limit, offset int) ([]*domain.ResultRecord, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*domain.ResultRecord), args.Error(1)
}

func (m *MockResultStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockResultStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	args := m.Called(ctx, writer)
	return args.Error(0)
}

func (m *MockResultStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// predictorFunc adapts a function to domain.Predictor.
type predictorFunc func(in domain.PredictionInput) (domain.Prediction, error)

func (f predictorFunc) Predict(_ context.Context, in domain.PredictionInput) (domain.Prediction, error) {
	return f(in)
}

func (f predictorFunc) Name() string { return "func" }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func scenarioRequest() *domain.BatchRequest {
	return &domain.BatchRequest{
		Rows: []domain.StructuredRow{{
			"patient_id":    "P1",
			"feat1":         0.1,
			"feat2":         0.2,
			"feat3":         0.3,
			"tumor_size_cm": 4.0,
			"growth_rate":   0.6,
		}},
		Genomics:  "BRCA1 mutation detected",
		Pathology: "Invasive ductal carcinoma, tumor: 4cm",
	}
}

func TestAnalysisService_AnalyzeBatch_Scenario(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.MatchedBy(func(in domain.PredictionInput) bool {
		return in.PatientID == "P1" && in.Features.HasBRCA1 == 1
	})).Return(domain.Prediction{Probability: 0.75, Label: 1}, nil)

	svc := NewAnalysisService(testLogger(), predictor)

	resp, err := svc.AnalyzeBatch(context.Background(), scenarioRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, resp.Status)
	assert.NotEmpty(t, resp.BatchID)
	require.Len(t, resp.Results, 1)

	result := resp.Results[0]
	assert.Equal(t, "P1", result.PatientID)
	require.NotNil(t, result.Fused)
	assert.Equal(t, 4.0, result.Fused.TumorSizeCM)
	assert.Equal(t, 0.3, result.Fused.GrowthRate, "extracted default overrides the structured growth rate")
	assert.Equal(t, 1, result.Fused.HasBRCA1)
	assert.Equal(t, 1, result.Fused.HistInvasiveDuctal)
	assert.Equal(t, 0, result.Fused.TumorSizeGT5)

	assert.Equal(t, domain.MODERATE_RISK, result.Analysis.RiskLevel)
	assert.Equal(t, domain.MEDIUM, result.Analysis.Confidence)
	require.Len(t, result.Analysis.Diagnoses, 3)
	assert.Equal(t, "Genetic Predisposition (BRCA1)", result.Analysis.Diagnoses[0].Condition)
	assert.Equal(t, "Medium Tumor Mass", result.Analysis.Diagnoses[1].Condition)
	assert.Equal(t, "AI Model Assessment", result.Analysis.Diagnoses[2].Condition)

	predictor.AssertExpectations(t)
}

func TestAnalysisService_PredictorErrorFallsBack(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).
		Return(domain.Prediction{}, errors.New("model offline"))

	svc := NewAnalysisService(testLogger(), predictor)

	resp, err := svc.AnalyzeBatch(context.Background(), scenarioRequest())

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	result := resp.Results[0]
	assert.Equal(t, "Patient_0", result.PatientID)
	assert.Nil(t, result.Fused)
	assert.Equal(t, domain.RISK_ERROR, result.Analysis.RiskLevel)
	assert.Equal(t, 0.5, result.Analysis.Probability)
	assert.Equal(t, domain.LOW, result.Analysis.Confidence)
	require.Len(t, result.Analysis.Anomalies, 1)
	assert.Contains(t, result.Analysis.Anomalies[0], "Error: ")
	assert.Contains(t, result.Analysis.Anomalies[0], "model offline")
	assert.Equal(t, []string{"Please check input data"}, result.Analysis.Recommendations)
}

func TestAnalysisService_InvalidPredictionFallsBack(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).
		Return(domain.Prediction{Probability: 1.5, Label: 1}, nil)

	svc := NewAnalysisService(testLogger(), predictor)

	resp, err := svc.AnalyzeBatch(context.Background(), scenarioRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.RISK_ERROR, resp.Results[0].Analysis.RiskLevel)
}

func TestAnalysisService_PanicIsolatedToRow(t *testing.T) {
	predictor := predictorFunc(func(in domain.PredictionInput) (domain.Prediction, error) {
		if in.PatientID == "bad" {
			panic("boom")
		}
		return domain.Prediction{Probability: 0.1, Label: 0}, nil
	})

	svc := NewAnalysisService(testLogger(), predictor)
	req := &domain.BatchRequest{
		Rows: []domain.StructuredRow{
			{"patient_id": "good-1"},
			{"patient_id": "bad"},
			{"patient_id": "good-2"},
		},
	}

	resp, err := svc.AnalyzeBatch(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "good-1", resp.Results[0].PatientID)
	assert.Equal(t, domain.VERY_LOW_RISK, resp.Results[0].Analysis.RiskLevel)
	assert.Equal(t, "Patient_1", resp.Results[1].PatientID)
	assert.Equal(t, domain.RISK_ERROR, resp.Results[1].Analysis.RiskLevel)
	assert.Equal(t, []string{"Error: boom"}, resp.Results[1].Analysis.Anomalies)
	assert.Equal(t, "good-2", resp.Results[2].PatientID)
	assert.Equal(t, domain.VERY_LOW_RISK, resp.Results[2].Analysis.RiskLevel)
}

func TestAnalysisService_PreservesRowOrder(t *testing.T) {
	var calls int64
	predictor := predictorFunc(func(in domain.PredictionInput) (domain.Prediction, error) {
		atomic.AddInt64(&calls, 1)
		return domain.Prediction{Probability: in.Features.Feat1, Label: 0}, nil
	})

	svc := NewAnalysisService(testLogger(), predictor, WithWorkers(3))

	rows := make([]domain.StructuredRow, 20)
	for i := range rows {
		rows[i] = domain.StructuredRow{"feat1": float64(i) / 20}
	}

	resp, err := svc.AnalyzeBatch(context.Background(), &domain.BatchRequest{Rows: rows})

	require.NoError(t, err)
	require.Len(t, resp.Results, 20)
	assert.Equal(t, int64(20), atomic.LoadInt64(&calls))
	for i, r := range resp.Results {
		assert.Equal(t, fmt.Sprintf("Patient_%d", i), r.PatientID)
		require.NotNil(t, r.Fused)
		assert.Equal(t, float64(i)/20, r.Fused.Feat1)
	}
}

func TestAnalysisService_EmptyBatch(t *testing.T) {
	predictor := new(MockPredictor)
	svc := NewAnalysisService(testLogger(), predictor)

	resp, err := svc.AnalyzeBatch(context.Background(), &domain.BatchRequest{})

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	predictor.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestAnalysisService_NoPredictor(t *testing.T) {
	svc := NewAnalysisService(testLogger(), nil)

	resp, err := svc.AnalyzeBatch(context.Background(), scenarioRequest())

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, domain.ErrPredictorUnavailable)
	assert.Equal(t, "", svc.PredictorName())
}

func TestAnalysisService_PredictorUnavailableForWholeBatch(t *testing.T) {
	unavailable := fmt.Errorf("%w: circuit breaker is open", domain.ErrPredictorUnavailable)
	store := new(MockResultStore)
	svc := NewAnalysisService(testLogger(), predictorFunc(func(domain.PredictionInput) (domain.Prediction, error) {
		return domain.Prediction{}, unavailable
	}), WithResultStore(store))

	req := scenarioRequest()
	req.Rows = append(req.Rows, domain.StructuredRow{"patient_id": "P2"})

	resp, err := svc.AnalyzeBatch(context.Background(), req)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, domain.ErrPredictorUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAnalysisService_PredictorUnavailableForSomeRows(t *testing.T) {
	svc := NewAnalysisService(testLogger(), predictorFunc(func(in domain.PredictionInput) (domain.Prediction, error) {
		if in.PatientID == "P2" {
			return domain.Prediction{}, domain.ErrPredictorUnavailable
		}
		return domain.Prediction{Probability: 0.3}, nil
	}))

	req := scenarioRequest()
	req.Rows = append(req.Rows, domain.StructuredRow{"patient_id": "P2"})

	resp, err := svc.AnalyzeBatch(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, domain.VERY_LOW_RISK, resp.Results[0].Analysis.RiskLevel)
	assert.Equal(t, domain.RISK_ERROR, resp.Results[1].Analysis.RiskLevel)
	assert.Equal(t, "Patient_1", resp.Results[1].PatientID)
}

func TestAnalysisService_CancelledContext(t *testing.T) {
	predictor := new(MockPredictor)
	svc := NewAnalysisService(testLogger(), predictor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := svc.AnalyzeBatch(ctx, scenarioRequest())

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
	predictor.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestAnalysisService_PersistsResults(t *testing.T) {
	predictor := predictorFunc(func(domain.PredictionInput) (domain.Prediction, error) {
		return domain.Prediction{Probability: 0.9, Label: 1}, nil
	})
	store := new(MockResultStore)
	store.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.ResultRecord) bool {
		return r.BatchID != "" && r.RequestID == "req-1"
	})).Return(nil).Twice()

	svc := NewAnalysisService(testLogger(), predictor, WithResultStore(store))
	req := &domain.BatchRequest{
		RequestID: "req-1",
		Rows:      []domain.StructuredRow{{"patient_id": "A"}, {"patient_id": "B"}},
	}

	resp, err := svc.AnalyzeBatch(context.Background(), req)

	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	store.AssertExpectations(t)
}

func TestAnalysisService_StoreFailureDoesNotFailBatch(t *testing.T) {
	predictor := predictorFunc(func(domain.PredictionInput) (domain.Prediction, error) {
		return domain.Prediction{Probability: 0.9, Label: 1}, nil
	})
	store := new(MockResultStore)
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	svc := NewAnalysisService(testLogger(), predictor, WithResultStore(store))

	resp, err := svc.AnalyzeBatch(context.Background(), scenarioRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.HIGH_RISK, resp.Results[0].Analysis.RiskLevel)
	store.AssertNumberOfCalls(t, "Save", 1)
}

func TestAnalysisService_AnalyzeRowReturnsError(t *testing.T) {
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).
		Return(domain.Prediction{}, domain.ErrPredictorUnavailable)

	svc := NewAnalysisService(testLogger(), predictor)

	fused, _, err := svc.AnalyzeRow(context.Background(), domain.StructuredRow{"feat2": 2.0}, "", "X")

	assert.ErrorIs(t, err, domain.ErrPredictorUnavailable)
	assert.Equal(t, 2.0, fused.Feat2)
	assert.Equal(t, "mock", svc.PredictorName())
}
