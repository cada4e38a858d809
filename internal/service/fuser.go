package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/medifusion-server/internal/domain"
)

// fusionStep applies one total override to the vector being built. Steps never fail;
// bad inputs leave or reset values per the step's own policy.
type fusionStep func(v *domain.FusedVector, row domain.StructuredRow, entities domain.EntityMap)

// FeatureFuser merges a structured row with extracted entities into the fixed-schema
// fused vector. It is stateless and safe for concurrent use.
type FeatureFuser struct {
	steps []fusionStep
}

// NewFeatureFuser creates a fuser with the standard step order: structured fields,
// entity overrides, gene flags, lymph node, histology, derived features.
func NewFeatureFuser() *FeatureFuser {
	return &FeatureFuser{
		steps: []fusionStep{
			applyStructuredFields,
			applyEntityMeasurements,
			applyMutationFlags,
			applyLymphNode,
			applyHistology,
			applyDerived,
		},
	}
}

// Fuse builds the fused vector. It never fails.
func (f *FeatureFuser) Fuse(row domain.StructuredRow, entities domain.EntityMap) domain.FusedVector {
	var v domain.FusedVector
	for _, step := range f.steps {
		step(&v, row, entities)
	}
	return v
}

// numericTargets maps structured fields to their slot in the vector.
func numericTargets(v *domain.FusedVector) map[string]*float64 {
	return map[string]*float64{
		domain.FieldFeat1:         &v.Feat1,
		domain.FieldFeat2:         &v.Feat2,
		domain.FieldFeat3:         &v.Feat3,
		domain.FieldTumorSizeCM:   &v.TumorSizeCM,
		domain.FieldGrowthRate:    &v.GrowthRate,
		domain.FieldTumorSizeFeat: &v.TumorSizeFeat,
		domain.FieldGrowthFeat:    &v.GrowthFeat,
	}
}

func applyStructuredFields(v *domain.FusedVector, row domain.StructuredRow, _ domain.EntityMap) {
	targets := numericTargets(v)
	for _, field := range domain.NumericFields {
		raw, ok := row[field]
		if !ok || isMissing(raw) {
			continue
		}
		f, err := toFloat(raw)
		if err != nil {
			f = 0.0
		}
		*targets[field] = f
	}
}

// Entity measurements take precedence over structured ones.
func applyEntityMeasurements(v *domain.FusedVector, _ domain.StructuredRow, entities domain.EntityMap) {
	if entities.TumorSizeCM != nil {
		v.TumorSizeCM = *entities.TumorSizeCM
	}
	if entities.GrowthRate != nil {
		v.GrowthRate = *entities.GrowthRate
	}
}

func applyMutationFlags(v *domain.FusedVector, _ domain.StructuredRow, entities domain.EntityMap) {
	v.HasBRCA1 = flag(entities.HasMutation("BRCA1"))
	v.HasBRCA2 = flag(entities.HasMutation("BRCA2"))
	v.HasTP53 = flag(entities.HasMutation("TP53"))
	v.HasEGFR = flag(entities.HasMutation("EGFR"))
}

func applyLymphNode(v *domain.FusedVector, _ domain.StructuredRow, entities domain.EntityMap) {
	v.LymphNodePositive = flag(entities.LymphNode == domain.LymphNodePositive)
}

func applyHistology(v *domain.FusedVector, _ domain.StructuredRow, entities domain.EntityMap) {
	v.HistInvasiveDuctal = flag(strings.Contains(entities.Histology, "invasive ductal"))
}

func applyDerived(v *domain.FusedVector, _ domain.StructuredRow, _ domain.EntityMap) {
	// NaN compares false, so it lands on 0 like any other comparison failure.
	v.TumorSizeGT5 = flag(v.TumorSizeCM > 5.0)
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isMissing reports values treated as absent: nil, empty, and NaN markers.
func isMissing(raw any) bool {
	switch t := raw.(type) {
	case nil:
		return true
	case string:
		return t == "" || t == "NaN" || t == "nan"
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	}
	return false
}

// toFloat coerces a row value to float64.
func toFloat(raw any) (float64, error) {
	switch t := raw.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("could not convert %T to float", raw)
	}
}
