package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifusion-server/internal/domain"
)

func TestEntityExtractor_EmptyText(t *testing.T) {
	x := NewEntityExtractor()

	entities := x.Extract("")

	assert.True(t, entities.IsEmpty(), "empty text must not receive defaults")
	assert.Nil(t, entities.TumorSizeCM)
	assert.Nil(t, entities.GrowthRate)
}

func TestEntityExtractor_DefaultsWhenNothingMatches(t *testing.T) {
	x := NewEntityExtractor()

	for _, text := range []string{"no findings", " ", "Genomics: \nPathology: "} {
		entities := x.Extract(text)

		require.NotNil(t, entities.TumorSizeCM, text)
		require.NotNil(t, entities.GrowthRate, text)
		assert.Equal(t, domain.DefaultTumorSizeCM, *entities.TumorSizeCM)
		assert.Equal(t, domain.DefaultGrowthRate, *entities.GrowthRate)
		assert.Nil(t, entities.Mutations)
		assert.Empty(t, entities.LymphNode)
		assert.Empty(t, entities.Histology)
	}
}

func TestEntityExtractor_TumorSizePriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"Tumor before lesion", "tumor: 3cm, lesion: 7cm", 3.0},
		{"Lesion before mass even when later in text", "mass 9 cm then lesion - 4.5 cm", 4.5},
		{"Mass", "Mass: 1.2 cm", 1.2},
		{"Size", "size:6cm", 6.0},
		{"Trailing unit", "a 2.7 cm lesion", 2.7},
		{"Trailing unit mass", "found 8cm mass", 8.0},
		{"Case folded", "TUMOR: 5.5 CM", 5.5},
	}

	x := NewEntityExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := x.Extract(tt.text)
			require.NotNil(t, entities.TumorSizeCM)
			assert.Equal(t, tt.want, *entities.TumorSizeCM)
		})
	}
}

func TestEntityExtractor_GrowthRate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"Growth rate", "growth rate: 0.85", 0.85},
		{"Growth", "growth - 0.4", 0.4},
		{"Doubling time", "doubling time estimated at 45 days", 45},
		{"Growth rate wins over doubling time", "doubling time 30, growth rate 0.2", 0.2},
		{"Default", "stable lesion", domain.DefaultGrowthRate},
	}

	x := NewEntityExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := x.Extract(tt.text)
			require.NotNil(t, entities.GrowthRate)
			assert.Equal(t, tt.want, *entities.GrowthRate)
		})
	}
}

func TestEntityExtractor_GenesCollectAll(t *testing.T) {
	x := NewEntityExtractor()

	t.Run("Fixed scan order", func(t *testing.T) {
		entities := x.Extract("TP53 and BRCA1 detected")
		assert.Equal(t, []string{"BRCA1", "TP53"}, entities.Mutations)
	})

	t.Run("Spec example", func(t *testing.T) {
		entities := x.Extract("BRCA1 and TP53")
		assert.Equal(t, []string{"BRCA1", "TP53"}, entities.Mutations)
	})

	t.Run("All genes", func(t *testing.T) {
		entities := x.Extract("braf kras egfr tp53 brca2 brca1")
		assert.Equal(t, CancerGenes, entities.Mutations)
	})

	t.Run("Whole word only", func(t *testing.T) {
		entities := x.Extract("BRCA12 and xEGFR")
		assert.Nil(t, entities.Mutations)
	})
}

func TestEntityExtractor_LymphNode(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"lymph node positive", domain.LymphNodePositive},
		{"Lymph node involved", domain.LymphNodePositive},
		{"lymphnode metastasis", domain.LymphNodePositive},
		{"lymph node negative", domain.LymphNodeNegative},
		{"no lymph node involvement", domain.LymphNodeNegative},
		{"lymph node negative elsewhere, lymph node positive here", domain.LymphNodePositive},
		{"nodes unremarkable", ""},
	}

	x := NewEntityExtractor()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, x.Extract(tt.text).LymphNode)
		})
	}
}

func TestEntityExtractor_Histology(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Invasive ductal carcinoma, grade 2", domain.HistologyInvasiveDuctal},
		{"adenocarcinoma of the lung", domain.HistologyAdenocarcinoma},
		{"adeno carcinoma", domain.HistologyAdenocarcinoma},
		{"adenocarcinoma with invasive ductal features", domain.HistologyInvasiveDuctal},
		{"benign cyst", ""},
	}

	x := NewEntityExtractor()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, x.Extract(tt.text).Histology)
		})
	}
}

func TestEntityExtractor_Deterministic(t *testing.T) {
	x := NewEntityExtractor()
	text := "Genomics: BRCA2, KRAS\nPathology: lesion 3.3 cm, growth: 0.9, lymph node negative"

	first := x.Extract(text)
	second := x.Extract(text)

	assert.Equal(t, first, second)
	assert.Equal(t, 3.3, *first.TumorSizeCM)
	assert.Equal(t, 0.9, *first.GrowthRate)
	assert.Equal(t, []string{"BRCA2", "KRAS"}, first.Mutations)
	assert.Equal(t, domain.LymphNodeNegative, first.LymphNode)
}

func TestEntityExtractor_UnicodeWhitespace(t *testing.T) {
	x := NewEntityExtractor()

	entities := x.Extract("Tumor:\u00a03cm, growth rate:\u2009 0.9, lymph\u00a0node positive, invasive\u3000ductal carcinoma")

	require.NotNil(t, entities.TumorSizeCM)
	assert.Equal(t, 3.0, *entities.TumorSizeCM)
	require.NotNil(t, entities.GrowthRate)
	assert.Equal(t, 0.9, *entities.GrowthRate)
	assert.Equal(t, domain.LymphNodePositive, entities.LymphNode)
	assert.Equal(t, domain.HistologyInvasiveDuctal, entities.Histology)
}

func TestEntityExtractor_NonASCIIDigitsIgnored(t *testing.T) {
	x := NewEntityExtractor()

	// Arabic-Indic digits are not matched by \d; the default applies.
	entities := x.Extract("tumor: \u0663cm")

	require.NotNil(t, entities.TumorSizeCM)
	assert.Equal(t, domain.DefaultTumorSizeCM, *entities.TumorSizeCM)
}
