package predictor

import (
	"context"
	"hash/fnv"

	"github.com/medifusion-server/internal/domain"
)

// HashPredictorName identifies the fallback predictor.
const HashPredictorName = "hash-fallback"

// HashPredictor is the demo fallback used when no model is configured. The probability
// depends only on the patient id: 0.3 + (fnv32a(id) % 70) / 100, so it always lies in
// [0.3, 0.99]. Label is 1 when probability exceeds 0.6.
type HashPredictor struct{}

// NewHashPredictor creates a new hash fallback predictor
func NewHashPredictor() *HashPredictor {
	return &HashPredictor{}
}

// Name implements domain.Predictor.
func (p *HashPredictor) Name() string {
	return HashPredictorName
}

// Predict implements domain.Predictor.
func (p *HashPredictor) Predict(ctx context.Context, in domain.PredictionInput) (domain.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Prediction{}, err
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(in.PatientID))
	probability := 0.3 + float64(h.Sum32()%70)/100

	label := 0
	if probability > 0.6 {
		label = 1
	}
	return domain.Prediction{Probability: probability, Label: label}, nil
}
