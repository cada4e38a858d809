package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/medifusion-server/internal/domain"
)

// numericRule captures a number from text. Rules in a group are tried in order and the
// first one whose capture parses wins.
type numericRule struct {
	name    string
	pattern *regexp.Regexp
}

// labelRule assigns a fixed label when its pattern matches.
type labelRule struct {
	label   string
	pattern *regexp.Regexp
}

// unicodeSpace widens \s to Unicode separators such as U+00A0. \d and \b stay ASCII
// only, so digits and word boundaries in other scripts are not recognised.
const unicodeSpace = `[\s\p{Z}\x{85}]`

// compile builds a rule pattern with \s widened to unicodeSpace.
func compile(pattern string) *regexp.Regexp {
	return regexp.MustCompile(strings.ReplaceAll(pattern, `\s`, unicodeSpace))
}

var tumorSizeRules = []numericRule{
	{"tumor", compile(`tumor\s*[:\-]?\s*(\d+(?:\.\d+)?)\s*cm`)},
	{"lesion", compile(`lesion\s*[:\-]?\s*(\d+(?:\.\d+)?)\s*cm`)},
	{"mass", compile(`mass\s*[:\-]?\s*(\d+(?:\.\d+)?)\s*cm`)},
	{"size", compile(`size\s*[:\-]?\s*(\d+(?:\.\d+)?)\s*cm`)},
	{"trailing_unit", compile(`(\d+(?:\.\d+)?)\s*cm\s*(?:tumor|lesion|mass)`)},
}

var growthRateRules = []numericRule{
	{"growth_rate", compile(`growth\s*rate\s*[:\-]?\s*(\d+(?:\.\d+)?)`)},
	{"growth", compile(`growth\s*[:\-]?\s*(\d+(?:\.\d+)?)`)},
	{"doubling_time", compile(`doubling\s*time.*?(\d+(?:\.\d+)?)`)},
}

// CancerGenes is the scan order of gene symbols recognised in free text.
var CancerGenes = []string{"BRCA1", "BRCA2", "TP53", "EGFR", "KRAS", "BRAF"}

var genePatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(CancerGenes))
	for i, gene := range CancerGenes {
		out[i] = compile(`\b` + strings.ToLower(gene) + `\b`)
	}
	return out
}()

var lymphNodeRules = []labelRule{
	{domain.LymphNodePositive, compile(`lymph\s*node\s*(?:positive|involved|metastasis)`)},
	{domain.LymphNodeNegative, compile(`lymph\s*node\s*negative|no\s*lymph\s*node`)},
}

var histologyRules = []labelRule{
	{domain.HistologyInvasiveDuctal, compile(`invasive\s*ductal`)},
	{domain.HistologyAdenocarcinoma, compile(`adeno\s*carcinoma`)},
}

// EntityExtractor pulls clinical entities out of combined genomics/pathology notes.
// Whitespace in patterns matches Unicode separators; digits and gene word boundaries
// are ASCII only. It is stateless and safe for concurrent use.
type EntityExtractor struct{}

// NewEntityExtractor creates a new entity extractor
func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{}
}

// Extract returns the entities found in text.
//
// Empty text yields an empty map with no defaults. Any other text always yields
// TumorSizeCM and GrowthRate, falling back to 2.0 and 0.3.
func (x *EntityExtractor) Extract(text string) domain.EntityMap {
	var entities domain.EntityMap
	if text == "" {
		return entities
	}

	text = strings.ToLower(text)

	if v, ok := firstNumber(tumorSizeRules, text); ok {
		entities.TumorSizeCM = &v
	}
	if v, ok := firstNumber(growthRateRules, text); ok {
		entities.GrowthRate = &v
	}

	for i, pattern := range genePatterns {
		if pattern.MatchString(text) {
			entities.Mutations = append(entities.Mutations, CancerGenes[i])
		}
	}

	entities.LymphNode = firstLabel(lymphNodeRules, text)
	entities.Histology = firstLabel(histologyRules, text)

	if entities.TumorSizeCM == nil {
		size := domain.DefaultTumorSizeCM
		entities.TumorSizeCM = &size
	}
	if entities.GrowthRate == nil {
		rate := domain.DefaultGrowthRate
		entities.GrowthRate = &rate
	}

	return entities
}

// firstNumber evaluates rules in order and stops at the first parseable capture.
func firstNumber(rules []numericRule, text string) (float64, bool) {
	for _, rule := range rules {
		m := rule.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

// firstLabel returns the label of the first matching rule, or "".
func firstLabel(rules []labelRule, text string) string {
	for _, rule := range rules {
		if rule.pattern.MatchString(text) {
			return rule.label
		}
	}
	return ""
}
