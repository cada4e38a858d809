package service

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/medifusion-server/internal/domain"
)

// MaxDiagnoses caps the ranked diagnosis list.
const MaxDiagnoses = 5

// riskBand maps a lower probability bound to a risk level. Bands are checked high to low.
type riskBand struct {
	min   float64
	level domain.RiskLevel
}

var riskBands = []riskBand{
	{0.8, domain.HIGH_RISK},
	{0.6, domain.MODERATE_RISK},
	{0.4, domain.LOW_RISK},
}

// diagnosisRule emits at most one diagnosis. All rules are evaluated.
type diagnosisRule struct {
	name     string
	evaluate func(in reasoningInput) (domain.Diagnosis, bool)
}

// anomalyRule flags a contradictory feature combination.
type anomalyRule struct {
	message string
	applies func(in reasoningInput) bool
}

// recommendationBand is selected when probability is strictly above min.
type recommendationBand struct {
	min   float64
	items []string
}

type reasoningInput struct {
	tumorSize   float64
	growthRate  float64
	lymphNode   bool
	hasBRCA1    bool
	hasBRCA2    bool
	probability float64
	label       int
}

const dataInconsistencyRecommendation = "Data inconsistencies detected - manual review recommended"

// ClinicalReasoner turns a fused vector and model output into risk level, ranked
// diagnoses, anomaly flags and recommendations. It is stateless and safe for
// concurrent use.
type ClinicalReasoner struct {
	diagnosisRules      []diagnosisRule
	anomalyRules        []anomalyRule
	recommendationBands []recommendationBand
	fallbackBand        []string
}

// NewClinicalReasoner creates a reasoner with the standard rule set
func NewClinicalReasoner() *ClinicalReasoner {
	r := &ClinicalReasoner{}
	r.initializeRules()
	return r
}

// Analyze produces the analysis for one patient. It never fails.
func (r *ClinicalReasoner) Analyze(fused domain.FusedVector, probability float64, label int) domain.AnalysisResult {
	in := reasoningInput{
		tumorSize:   fused.TumorSizeCM,
		growthRate:  fused.GrowthRate,
		lymphNode:   fused.LymphNodePositive != 0,
		hasBRCA1:    fused.HasBRCA1 != 0,
		hasBRCA2:    fused.HasBRCA2 != 0,
		probability: probability,
		label:       label,
	}

	anomalies := r.detectAnomalies(in)

	return domain.AnalysisResult{
		Probability:     roundProbability(probability),
		RiskLevel:       RiskLevelFor(probability),
		Diagnoses:       r.rankDiagnoses(in),
		Anomalies:       anomalies,
		Recommendations: r.recommend(in, len(anomalies) > 0),
		Confidence:      ConfidenceFor(probability),
	}
}

// roundProbability rounds to 3 decimals from the exact binary value, so 0.1235 (stored
// just below the midpoint) becomes 0.123.
func roundProbability(p float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(p, 'f', 3, 64), 64)
	if err != nil {
		return p
	}
	return rounded
}

// RiskLevelFor returns the first band whose lower bound probability reaches.
func RiskLevelFor(probability float64) domain.RiskLevel {
	for _, band := range riskBands {
		if probability >= band.min {
			return band.level
		}
	}
	return domain.VERY_LOW_RISK
}

// ConfidenceFor is "high" for probabilities near either end, "medium" otherwise.
func ConfidenceFor(probability float64) domain.ConfidenceLevel {
	if probability > 0.8 || probability < 0.2 {
		return domain.HIGH
	}
	return domain.MEDIUM
}

func (r *ClinicalReasoner) rankDiagnoses(in reasoningInput) []domain.Diagnosis {
	diagnoses := make([]domain.Diagnosis, 0, len(r.diagnosisRules))
	for _, rule := range r.diagnosisRules {
		if d, ok := rule.evaluate(in); ok {
			diagnoses = append(diagnoses, d)
		}
	}

	// Stable keeps generation order among equal confidences.
	sort.SliceStable(diagnoses, func(i, j int) bool {
		return diagnoses[i].Confidence > diagnoses[j].Confidence
	})
	if len(diagnoses) > MaxDiagnoses {
		diagnoses = diagnoses[:MaxDiagnoses]
	}
	return diagnoses
}

func (r *ClinicalReasoner) detectAnomalies(in reasoningInput) []string {
	anomalies := []string{}
	for _, rule := range r.anomalyRules {
		if rule.applies(in) {
			anomalies = append(anomalies, rule.message)
		}
	}
	return anomalies
}

func (r *ClinicalReasoner) recommend(in reasoningInput, hasAnomalies bool) []string {
	band := r.fallbackBand
	for _, b := range r.recommendationBands {
		if in.probability > b.min {
			band = b.items
			break
		}
	}

	recommendations := make([]string, 0, len(band)+1)
	recommendations = append(recommendations, band...)
	if hasAnomalies {
		recommendations = append(recommendations, dataInconsistencyRecommendation)
	}
	return recommendations
}

// initializeRules sets up diagnosis, anomaly and recommendation rules in evaluation order
func (r *ClinicalReasoner) initializeRules() {
	r.diagnosisRules = []diagnosisRule{
		{"tumor_mass", evaluateTumorMass},
		{"rapid_growth", evaluateRapidGrowth},
		{"genetic_predisposition", evaluateGeneticPredisposition},
		{"lymph_node_metastasis", evaluateLymphNode},
		{"model_assessment", evaluateModelAssessment},
	}

	r.anomalyRules = []anomalyRule{
		{
			message: "Large tumor with low growth rate - verify measurements",
			applies: func(in reasoningInput) bool { return in.tumorSize > 3 && in.growthRate < 0.1 },
		},
		{
			message: "Small tumor with high growth rate - confirm measurements",
			applies: func(in reasoningInput) bool { return in.tumorSize < 1 && in.growthRate > 0.8 },
		},
		{
			message: "Genetic markers present but low probability - review case",
			applies: func(in reasoningInput) bool { return (in.hasBRCA1 || in.hasBRCA2) && in.probability < 0.3 },
		},
	}

	r.recommendationBands = []recommendationBand{
		{0.7, []string{
			"Urgent specialist consultation",
			"Consider immediate biopsy",
			"Schedule follow-up imaging within 2 weeks",
		}},
		{0.4, []string{
			"Schedule specialist consultation",
			"Repeat imaging in 1-3 months",
		}},
	}
	r.fallbackBand = []string{
		"Routine monitoring recommended",
		"Re-evaluate in 6-12 months",
	}
}

func evaluateTumorMass(in reasoningInput) (domain.Diagnosis, bool) {
	switch {
	case in.tumorSize > 5:
		return domain.Diagnosis{
			Condition:  "Large Tumor Mass",
			Confidence: math.Min(0.9, in.probability+0.2),
			Evidence:   fmt.Sprintf("Tumor size %scm exceeds 5cm threshold", formatMeasurement(in.tumorSize)),
		}, true
	case in.tumorSize > 2:
		return domain.Diagnosis{
			Condition:  "Medium Tumor Mass",
			Confidence: in.probability,
			Evidence:   fmt.Sprintf("Tumor size %scm requires monitoring", formatMeasurement(in.tumorSize)),
		}, true
	}
	return domain.Diagnosis{}, false
}

func evaluateRapidGrowth(in reasoningInput) (domain.Diagnosis, bool) {
	if in.growthRate <= 0.7 {
		return domain.Diagnosis{}, false
	}
	return domain.Diagnosis{
		Condition:  "Rapid Growth Pattern",
		Confidence: math.Min(0.95, in.probability+0.25),
		Evidence:   fmt.Sprintf("Growth rate %s indicates aggressive behavior", formatMeasurement(in.growthRate)),
	}, true
}

// BRCA1 is reported when both BRCA genes are present.
func evaluateGeneticPredisposition(in reasoningInput) (domain.Diagnosis, bool) {
	var gene string
	switch {
	case in.hasBRCA1:
		gene = "BRCA1"
	case in.hasBRCA2:
		gene = "BRCA2"
	default:
		return domain.Diagnosis{}, false
	}
	return domain.Diagnosis{
		Condition:  fmt.Sprintf("Genetic Predisposition (%s)", gene),
		Confidence: 0.8,
		Evidence:   fmt.Sprintf("%s mutation detected", gene),
	}, true
}

func evaluateLymphNode(in reasoningInput) (domain.Diagnosis, bool) {
	if !in.lymphNode {
		return domain.Diagnosis{}, false
	}
	return domain.Diagnosis{
		Condition:  "Lymph Node Metastasis",
		Confidence: 0.9,
		Evidence:   "Lymph node involvement detected",
	}, true
}

func evaluateModelAssessment(in reasoningInput) (domain.Diagnosis, bool) {
	verdict := "BENIGN"
	if in.label == 1 {
		verdict = "MALIGNANT"
	}
	return domain.Diagnosis{
		Condition:  "AI Model Assessment",
		Confidence: in.probability,
		Evidence:   fmt.Sprintf("Model prediction: %s", verdict),
	}, true
}

// formatMeasurement renders whole numbers with one decimal place ("4.0") and keeps
// the shortest representation otherwise ("3.25").
func formatMeasurement(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		s += ".0"
	}
	return s
}
