package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/clinsearch/pkg/types"
)

func TestClassify_AbbreviationShortCircuit(t *testing.T) {
	classifier := NewClassifier()
	ctx := context.Background()

	// Abbreviation hits ignore context entirely.
	for _, contextText := range []string{"", "prescribed for surgery lab panel", "completely unrelated"} {
		result := classifier.Classify(ctx, "htn", contextText)
		assert.Equal(t, types.EntityTypeCondition, result.PredictedType)
		assert.Equal(t, 0.95, result.Confidence)
		assert.Empty(t, result.AlternativeTypes)
	}

	result := classifier.Classify(ctx, "MRI", "ordered an mri of the knee")
	assert.Equal(t, types.EntityTypeProcedure, result.PredictedType)
	assert.Equal(t, 0.95, result.Confidence)

	result = classifier.Classify(ctx, "cbc", "")
	assert.Equal(t, types.EntityTypeLabTest, result.PredictedType)
}

func TestClassify_KeywordScoring(t *testing.T) {
	classifier := NewClassifier()

	result := classifier.Classify(context.Background(), "lisinopril",
		"prescribed lisinopril 10 mg tablet daily, refill in 90 days")
	assert.Equal(t, types.EntityTypeMedication, result.PredictedType)
	assert.Greater(t, result.Confidence, 0.1)
	assert.LessOrEqual(t, result.Confidence, 0.95)
}

func TestClassify_FallbackSuffixRules(t *testing.T) {
	classifier := NewClassifier()
	ctx := context.Background()

	tests := []struct {
		text string
		want types.EntityType
	}{
		{"neuropathy", types.EntityTypeCondition},
		{"appendectomy", types.EntityTypeProcedure},
		{"amoxicillin", types.EntityTypeMedication},
		{"zzzz", types.EntityTypeUnknown},
	}
	for _, tt := range tests {
		result := classifier.Classify(ctx, tt.text, "")
		assert.Equal(t, tt.want, result.PredictedType, "text %q", tt.text)
		assert.Equal(t, 0.3, result.Confidence, "fallback verdicts are low-confidence")
	}
}

func TestClassify_AlternativesAreBounded(t *testing.T) {
	classifier := NewClassifier()

	// Context touching several categories at once.
	result := classifier.Classify(context.Background(), "troponin",
		"elevated troponin level on the blood panel after chest pain, scan scheduled")
	require.NotEqual(t, types.EntityTypeUnknown, result.PredictedType)
	assert.LessOrEqual(t, len(result.AlternativeTypes), 2)
	for _, alt := range result.AlternativeTypes {
		assert.Greater(t, alt.Score, 0.1)
		assert.LessOrEqual(t, alt.Score, result.Confidence)
	}
}

// stubEmbedder returns canned vectors keyed by input text; unknown texts get
// the fallback vector.
type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.fallback, nil
}

func (e *stubEmbedder) Model() string { return "stub-model" }

func TestClassify_EmbeddingBlendPrefersPrototypeSimilarity(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0}}
	prototypes := map[types.EntityType][]float32{
		types.EntityTypeMedication: {1, 0},
		types.EntityTypeCondition:  {0, 1},
	}
	classifier := NewClassifier(WithEmbeddingBlend(embedder, prototypes))

	// No keyword signal at all; the embedding similarity decides alone.
	result := classifier.Classify(context.Background(), "xyzal", "")
	assert.Equal(t, types.EntityTypeMedication, result.PredictedType)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9, "similarity 1.0 capped at 0.95")
}
