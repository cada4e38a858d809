// Package domain contains the core data model of the MediFusion analysis pipeline:
// entities extracted from clinical free text, structured patient rows, the fused
// feature vector consumed by the predictor, and the final analysis record.
//
// The system is a demonstration service. None of the thresholds or labels below are
// medically validated.
package domain

import (
	"errors"
	"fmt"
)

// RiskLevel is the probability band assigned to a patient.
type RiskLevel string

const (
	HIGH_RISK     RiskLevel = "HIGH RISK"
	MODERATE_RISK RiskLevel = "MODERATE RISK"
	LOW_RISK      RiskLevel = "LOW RISK"
	VERY_LOW_RISK RiskLevel = "VERY LOW RISK"
	// RISK_ERROR marks a row whose processing failed.
	RISK_ERROR RiskLevel = "ERROR"
)

// ConfidenceLevel is the coarse confidence label attached to an analysis.
type ConfidenceLevel string

const (
	HIGH   ConfidenceLevel = "high"
	MEDIUM ConfidenceLevel = "medium"
	LOW    ConfidenceLevel = "low"
)

// Lymph node statuses and histology types recognised by the entity extractor.
const (
	LymphNodePositive = "positive"
	LymphNodeNegative = "negative"

	HistologyInvasiveDuctal = "invasive ductal carcinoma"
	HistologyAdenocarcinoma = "adenocarcinoma"
)

// Defaults applied by the extractor when text is present but no pattern matched.
const (
	DefaultTumorSizeCM = 2.0
	DefaultGrowthRate  = 0.3
)

// Validation errors
var (
	ErrNotFound             = errors.New("not found")
	ErrPredictorUnavailable = errors.New("predictor unavailable")
	ErrInvalidProbability   = errors.New("probability outside [0, 1]")
	ErrInvalidLabel         = errors.New("predicted label must be 0 or 1")
)

// IsValid reports whether r is one of the known risk bands.
func (r RiskLevel) IsValid() bool {
	switch r {
	case HIGH_RISK, MODERATE_RISK, LOW_RISK, VERY_LOW_RISK, RISK_ERROR:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// String returns the string representation of the confidence level.
func (c ConfidenceLevel) String() string {
	return string(c)
}

// EntityMap holds clinical entities extracted from free text.
//
// TumorSizeCM and GrowthRate are always set when the source text was non-empty.
// Mutations, LymphNode and Histology are only set on a text match; absence means
// "unknown", not "zero".
type EntityMap struct {
	TumorSizeCM *float64 `json:"tumor_size_cm,omitempty"`
	GrowthRate  *float64 `json:"growth_rate,omitempty"`
	Mutations   []string `json:"mutations,omitempty"`
	LymphNode   string   `json:"lymph_node,omitempty"`
	Histology   string   `json:"histology,omitempty"`
}

// IsEmpty reports whether no entity is present.
func (e EntityMap) IsEmpty() bool {
	return e.TumorSizeCM == nil && e.GrowthRate == nil && len(e.Mutations) == 0 &&
		e.LymphNode == "" && e.Histology == ""
}

// HasMutation reports whether gene was among the extracted mutations.
func (e EntityMap) HasMutation(gene string) bool {
	for _, m := range e.Mutations {
		if m == gene {
			return true
		}
	}
	return false
}

// StructuredRow is one patient's tabular record. Values are float64, string or nil.
type StructuredRow map[string]any

// Structured field names.
const (
	FieldPatientID     = "patient_id"
	FieldFeat1         = "feat1"
	FieldFeat2         = "feat2"
	FieldFeat3         = "feat3"
	FieldTumorSizeCM   = "tumor_size_cm"
	FieldGrowthRate    = "growth_rate"
	FieldTumorSizeFeat = "tumor_size_feat"
	FieldGrowthFeat    = "growth_feat"
)

// NumericFields lists the structured fields copied into the fused vector.
var NumericFields = []string{
	FieldFeat1, FieldFeat2, FieldFeat3,
	FieldTumorSizeCM, FieldGrowthRate,
	FieldTumorSizeFeat, FieldGrowthFeat,
}

// DefaultFeatureColumns is the column order used by predictors when no model file
// declares its own.
var DefaultFeatureColumns = []string{
	FieldFeat1, FieldFeat2, FieldFeat3,
	FieldTumorSizeCM, FieldGrowthRate,
	FieldTumorSizeFeat, FieldGrowthFeat,
}

// FusedVector is the fixed-schema feature record produced by fusion. Every field is
// always present; flags are 0 or 1.
type FusedVector struct {
	Feat1              float64 `json:"feat1"`
	Feat2              float64 `json:"feat2"`
	Feat3              float64 `json:"feat3"`
	TumorSizeCM        float64 `json:"tumor_size_cm"`
	GrowthRate         float64 `json:"growth_rate"`
	TumorSizeFeat      float64 `json:"tumor_size_feat"`
	GrowthFeat         float64 `json:"growth_feat"`
	HasBRCA1           int     `json:"has_brca1"`
	HasBRCA2           int     `json:"has_brca2"`
	HasTP53            int     `json:"has_tp53"`
	HasEGFR            int     `json:"has_egfr"`
	LymphNodePositive  int     `json:"lymph_node_positive"`
	HistInvasiveDuctal int     `json:"hist_invasive_ductal"`
	TumorSizeGT5       int     `json:"tumor_size_gt5"`
}

// FusedFeatureNames lists the 14 keys of a fused vector in schema order.
var FusedFeatureNames = []string{
	"feat1", "feat2", "feat3", "tumor_size_cm", "growth_rate",
	"tumor_size_feat", "growth_feat", "has_brca1", "has_brca2",
	"has_tp53", "has_egfr", "lymph_node_positive", "hist_invasive_ductal",
	"tumor_size_gt5",
}

// Get returns the value of the named feature.
func (v FusedVector) Get(name string) (float64, bool) {
	switch name {
	case "feat1":
		return v.Feat1, true
	case "feat2":
		return v.Feat2, true
	case "feat3":
		return v.Feat3, true
	case "tumor_size_cm":
		return v.TumorSizeCM, true
	case "growth_rate":
		return v.GrowthRate, true
	case "tumor_size_feat":
		return v.TumorSizeFeat, true
	case "growth_feat":
		return v.GrowthFeat, true
	case "has_brca1":
		return float64(v.HasBRCA1), true
	case "has_brca2":
		return float64(v.HasBRCA2), true
	case "has_tp53":
		return float64(v.HasTP53), true
	case "has_egfr":
		return float64(v.HasEGFR), true
	case "lymph_node_positive":
		return float64(v.LymphNodePositive), true
	case "hist_invasive_ductal":
		return float64(v.HistInvasiveDuctal), true
	case "tumor_size_gt5":
		return float64(v.TumorSizeGT5), true
	default:
		return 0, false
	}
}

// Values orders the vector by columns. Unknown columns read as 0.
func (v FusedVector) Values(columns []string) []float64 {
	out := make([]float64, len(columns))
	for i, col := range columns {
		out[i], _ = v.Get(col)
	}
	return out
}

// AsMap returns the vector as a name to value mapping.
func (v FusedVector) AsMap() map[string]float64 {
	m := make(map[string]float64, len(FusedFeatureNames))
	for _, name := range FusedFeatureNames {
		m[name], _ = v.Get(name)
	}
	return m
}

// Diagnosis is a single ranked finding in an analysis.
type Diagnosis struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// AnalysisResult is the output of the clinical reasoner for one patient.
type AnalysisResult struct {
	Probability     float64         `json:"probability"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	Diagnoses       []Diagnosis     `json:"diagnoses"`
	Anomalies       []string        `json:"anomalies"`
	Recommendations []string        `json:"recommendations"`
	Confidence      ConfidenceLevel `json:"confidence"`
}

// Prediction is the opaque output of a Predictor.
type Prediction struct {
	Probability float64 `json:"probability"`
	Label       int     `json:"label"`
}

// Validate checks the prediction honours the predictor contract.
func (p Prediction) Validate() error {
	if p.Probability != p.Probability || p.Probability < 0 || p.Probability > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, p.Probability)
	}
	if p.Label != 0 && p.Label != 1 {
		return fmt.Errorf("%w: %d", ErrInvalidLabel, p.Label)
	}
	return nil
}

// PredictionInput is what a Predictor receives for one patient.
type PredictionInput struct {
	PatientID string
	Features  FusedVector
}

// PatientResult is the per-patient element of a batch response. Fused is nil for rows
// whose processing failed and is then rendered as an empty object.
type PatientResult struct {
	PatientID string         `json:"patient_id"`
	Fused     *FusedVector   `json:"fused"`
	Analysis  AnalysisResult `json:"analysis"`
}
