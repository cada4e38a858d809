package predictor

import (
	"context"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/medifusion-server/internal/domain"
)

// LogisticModel is a linear model over fused features, stored as YAML:
//
//	name: breast-v1
//	feature_columns: [feat1, feat2, feat3, tumor_size_cm, growth_rate, tumor_size_feat, growth_feat]
//	weights: [0.4, 0.2, 0.3, 0.35, 1.1, 0.2, 0.1]
//	bias: -2.0
type LogisticModel struct {
	Name           string    `yaml:"name"`
	FeatureColumns []string  `yaml:"feature_columns"`
	Weights        []float64 `yaml:"weights"`
	Bias           float64   `yaml:"bias"`
}

// LoadLogisticModel reads and validates a model file.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseLogisticModel(data)
}

// ParseLogisticModel decodes a YAML model. Missing feature columns default to the
// standard structured columns.
func ParseLogisticModel(data []byte) (*LogisticModel, error) {
	var m LogisticModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if len(m.FeatureColumns) == 0 {
		m.FeatureColumns = append([]string(nil), domain.DefaultFeatureColumns...)
	}
	if m.Name == "" {
		m.Name = "logistic"
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the model is usable.
func (m *LogisticModel) Validate() error {
	if len(m.Weights) != len(m.FeatureColumns) {
		return fmt.Errorf("model %s has %d weights for %d feature columns", m.Name, len(m.Weights), len(m.FeatureColumns))
	}
	for i, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("model %s weight %d is not finite", m.Name, i)
		}
	}
	if math.IsNaN(m.Bias) || math.IsInf(m.Bias, 0) {
		return fmt.Errorf("model %s bias is not finite", m.Name)
	}
	return nil
}

// LogisticPredictor scores fused vectors with a LogisticModel.
type LogisticPredictor struct {
	model *LogisticModel
}

// NewLogisticPredictor creates a predictor around a validated model
func NewLogisticPredictor(model *LogisticModel) *LogisticPredictor {
	return &LogisticPredictor{model: model}
}

// Name implements domain.Predictor.
func (p *LogisticPredictor) Name() string {
	return p.model.Name
}

// Predict implements domain.Predictor. Label is 1 when probability is at least 0.5.
func (p *LogisticPredictor) Predict(ctx context.Context, in domain.PredictionInput) (domain.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Prediction{}, err
	}

	z := p.model.Bias
	for i, x := range in.Features.Values(p.model.FeatureColumns) {
		z += p.model.Weights[i] * x
	}
	probability := sigmoid(z)

	label := 0
	if probability >= 0.5 {
		label = 1
	}
	return domain.Prediction{Probability: probability, Label: label}, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
