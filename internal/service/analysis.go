package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/medifusion-server/internal/domain"
	"github.com/medifusion-server/internal/ingest"
)

// DefaultWorkers bounds concurrent row processing when no value is configured.
const DefaultWorkers = 4

// AnalysisService runs extraction, fusion, prediction and reasoning for every row of a
// batch. Rows are independent; a failing row degrades to the error-shaped result
// without affecting the others.
type AnalysisService struct {
	logger    *logrus.Logger
	extractor *EntityExtractor
	fuser     *FeatureFuser
	reasoner  *ClinicalReasoner
	predictor domain.Predictor
	store     domain.ResultStore
	workers   int
}

// AnalysisOption is a functional option for AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithResultStore persists every processed row.
func WithResultStore(store domain.ResultStore) AnalysisOption {
	return func(s *AnalysisService) {
		s.store = store
	}
}

// WithWorkers sets the size of the row worker pool.
func WithWorkers(n int) AnalysisOption {
	return func(s *AnalysisService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewAnalysisService creates a new analysis service around predictor
func NewAnalysisService(logger *logrus.Logger, predictor domain.Predictor, opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{
		logger:    logger,
		extractor: NewEntityExtractor(),
		fuser:     NewFeatureFuser(),
		reasoner:  NewClinicalReasoner(),
		predictor: predictor,
		workers:   DefaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predictor returns the configured predictor, which may be nil.
func (s *AnalysisService) Predictor() domain.Predictor {
	return s.predictor
}

// PredictorName returns the name of the configured predictor.
func (s *AnalysisService) PredictorName() string {
	if s.predictor == nil {
		return ""
	}
	return s.predictor.Name()
}

// AnalyzeBatch processes every row of req. It returns an error only for request-level
// failures: no predictor, a predictor unavailable for every row, or a cancelled
// context. Results keep the input row order.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, req *domain.BatchRequest) (*domain.BatchResponse, error) {
	if s.predictor == nil {
		return nil, domain.ErrPredictorUnavailable
	}

	startTime := time.Now()
	batchID := uuid.New().String()
	text := ingest.CombineText(req.Genomics, req.Pathology)
	results := make([]domain.PatientResult, len(req.Rows))
	rowErrs := make([]error, len(req.Rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, row := range req.Rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], rowErrs[i] = s.processRow(gctx, i, row, text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyzing batch: %w", err)
	}

	if err := batchUnavailable(rowErrs); err != nil {
		return nil, fmt.Errorf("analyzing batch: %w", err)
	}

	failed := 0
	for _, err := range rowErrs {
		if err != nil {
			failed++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id":        batchID,
		"request_id":      req.RequestID,
		"rows":            len(results),
		"failed_rows":     failed,
		"predictor":       s.predictor.Name(),
		"processing_time": time.Since(startTime),
	}).Info("Batch analysis completed")

	s.persist(ctx, batchID, req.RequestID, results)

	return &domain.BatchResponse{
		Status:  domain.StatusOK,
		BatchID: batchID,
		Results: results,
	}, nil
}

// AnalyzeRow runs the pipeline for one row and returns an error instead of the
// fallback result.
func (s *AnalysisService) AnalyzeRow(ctx context.Context, row domain.StructuredRow, text string, patientID string) (domain.FusedVector, domain.AnalysisResult, error) {
	entities := s.extractor.Extract(text)
	fused := s.fuser.Fuse(row, entities)

	prediction, err := s.predictor.Predict(ctx, domain.PredictionInput{
		PatientID: patientID,
		Features:  fused,
	})
	if err != nil {
		return fused, domain.AnalysisResult{}, fmt.Errorf("predicting: %w", err)
	}
	if err := prediction.Validate(); err != nil {
		return fused, domain.AnalysisResult{}, fmt.Errorf("predicting: %w", err)
	}

	return fused, s.reasoner.Analyze(fused, prediction.Probability, prediction.Label), nil
}

// processRow always returns a usable result: errors and panics become the fallback
// result, and the row's error is returned alongside it.
func (s *AnalysisService) processRow(ctx context.Context, index int, row domain.StructuredRow, text string) (result domain.PatientResult, rowErr error) {
	patientID := ingest.PatientID(row, index)

	defer func() {
		if rec := recover(); rec != nil {
			rowErr = fmt.Errorf("%v", rec)
			result = s.fallback(index, patientID, rowErr)
		}
	}()

	fused, analysis, err := s.AnalyzeRow(ctx, row, text, patientID)
	if err != nil {
		return s.fallback(index, patientID, err), err
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id":  patientID,
		"row_index":   index,
		"risk_level":  analysis.RiskLevel.String(),
		"probability": analysis.Probability,
		"anomalies":   len(analysis.Anomalies),
	}).Debug("Patient analyzed")

	return domain.PatientResult{
		PatientID: patientID,
		Fused:     &fused,
		Analysis:  analysis,
	}, nil
}

// batchUnavailable returns the first row error when every row failed because the
// predictor was unavailable. An empty batch never qualifies.
func batchUnavailable(rowErrs []error) error {
	if len(rowErrs) == 0 {
		return nil
	}
	for _, err := range rowErrs {
		if !errors.Is(err, domain.ErrPredictorUnavailable) {
			return nil
		}
	}
	return rowErrs[0]
}

func (s *AnalysisService) fallback(index int, patientID string, err error) domain.PatientResult {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"patient_id": patientID,
		"row_index":  index,
	}).Warn("Failed to process patient row")

	return domain.PatientResult{
		PatientID: fmt.Sprintf("Patient_%d", index),
		Analysis:  domain.ErrorAnalysis(err),
	}
}

// persist saves results when a store is configured. Failures are logged only.
func (s *AnalysisService) persist(ctx context.Context, batchID, requestID string, results []domain.PatientResult) {
	if s.store == nil {
		return
	}
	for _, r := range results {
		record := &domain.ResultRecord{
			BatchID:   batchID,
			RequestID: requestID,
			PatientID: r.PatientID,
			Fused:     r.Fused,
			Analysis:  r.Analysis,
		}
		if err := s.store.Save(ctx, record); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"batch_id":   batchID,
				"patient_id": r.PatientID,
			}).Warn("Failed to persist analysis result")
		}
	}
}
