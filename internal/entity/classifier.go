// Package entity provides classification and deduplication of clinical
// entity mentions extracted from document text.
package entity

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/embedding"
	"github.com/medscribe/clinsearch/pkg/types"
)

const (
	// abbreviationConfidence is reported for exact abbreviation-table hits.
	abbreviationConfidence = 0.95

	// minCategoryScore is the floor below which the classifier falls back to
	// the rule-based default instead of trusting keyword/embedding signals.
	minCategoryScore = 0.1

	// fallbackConfidence marks rule-based fallback verdicts as low-confidence
	// guesses.
	fallbackConfidence = 0.3

	// maxConfidence caps non-abbreviation verdicts so they never outrank an
	// abbreviation hit.
	maxConfidence = 0.95

	// embeddingWeight and keywordWeight blend the two signals when both are
	// available.
	embeddingWeight = 0.6
	keywordWeight   = 0.4
)

// Classifier assigns an entity type to a text span. It cascades from cheap,
// unambiguous signals to fuzzier ones: abbreviation lookup, then keyword
// scoring over the surrounding context, then an optional embedding blend
// against category prototype vectors.
type Classifier struct {
	abbreviations map[string]types.EntityType
	keywords      map[types.EntityType][]string
	provider      embedding.Provider
	prototypes    map[types.EntityType][]float32
	logger        *zap.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithEmbeddingBlend enables the embedding similarity stage. prototypes maps
// each category to a precomputed prototype vector; categories without a
// prototype fall back to keyword scoring alone.
func WithEmbeddingBlend(provider embedding.Provider, prototypes map[types.EntityType][]float32) ClassifierOption {
	return func(c *Classifier) {
		c.provider = provider
		c.prototypes = prototypes
	}
}

// WithClassifierLogger sets the logger (default: no-op).
func WithClassifierLogger(logger *zap.Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier creates a classifier with the built-in abbreviation and
// keyword tables.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		abbreviations: abbreviationTypes,
		keywords:      types.CategoryKeywords(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify assigns an entity type to entityText, using context (the
// surrounding sentence or note fragment) for disambiguation.
//
// Abbreviation hits short-circuit at confidence 0.95 regardless of context.
// Otherwise every non-structural category is scored and the winner reported
// with confidence min(0.95, score) plus up to two runner-ups; when no score
// reaches 0.1 a rule-based default is reported at confidence 0.3.
func (c *Classifier) Classify(ctx context.Context, entityText, contextText string) types.ClassificationResult {
	result := types.ClassificationResult{
		EntityText:     entityText,
		ContextSnippet: contextText,
	}

	normalized := strings.ToLower(strings.TrimSpace(entityText))
	if entityType, ok := c.abbreviations[normalized]; ok {
		result.PredictedType = entityType
		result.Confidence = abbreviationConfidence
		return result
	}

	scores := c.keywordScores(entityText, contextText)
	c.blendEmbeddingScores(ctx, entityText, contextText, scores)

	ranked := rankScores(scores)
	if len(ranked) == 0 || ranked[0].Score < minCategoryScore {
		result.PredictedType = defaultClassify(normalized)
		result.Confidence = fallbackConfidence
		return result
	}

	result.PredictedType = ranked[0].Type
	result.Confidence = ranked[0].Score
	if result.Confidence > maxConfidence {
		result.Confidence = maxConfidence
	}
	for _, alt := range ranked[1:] {
		if alt.Score <= minCategoryScore || len(result.AlternativeTypes) == 2 {
			break
		}
		result.AlternativeTypes = append(result.AlternativeTypes, alt)
	}
	return result
}

// keywordScores counts category keyword occurrences in the entity text plus
// context, normalized by min(5, 0.3 * list length) and capped at 1.0 so list
// length does not skew scores across categories.
func (c *Classifier) keywordScores(entityText, contextText string) map[types.EntityType]float64 {
	haystack := strings.ToLower(contextText + " " + entityText)
	scores := make(map[types.EntityType]float64, len(c.keywords))

	for entityType, keywords := range c.keywords {
		if entityType.IsStructural() {
			continue
		}
		matches := 0
		for _, keyword := range keywords {
			if strings.Contains(haystack, keyword) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		norm := 0.3 * float64(len(keywords))
		if norm > 5 {
			norm = 5
		}
		score := float64(matches) / norm
		if score > 1.0 {
			score = 1.0
		}
		scores[entityType] = score
	}
	return scores
}

// blendEmbeddingScores mixes cosine similarity against category prototypes
// into the keyword scores as 0.6*embedding + 0.4*keyword. Embedding failures
// degrade to keyword-only scoring.
func (c *Classifier) blendEmbeddingScores(ctx context.Context, entityText, contextText string, scores map[types.EntityType]float64) {
	if c.provider == nil || len(c.prototypes) == 0 {
		return
	}

	vector, err := c.provider.Embed(ctx, strings.TrimSpace(entityText+" "+contextText))
	if err != nil {
		c.logger.Warn("entity embedding failed, using keyword scores only",
			zap.String("entity", entityText), zap.Error(err))
		return
	}

	for entityType, prototype := range c.prototypes {
		if entityType.IsStructural() {
			continue
		}
		similarity := embedding.CosineSimilarity(vector, prototype)
		if similarity <= 0 {
			continue
		}
		if keyword, ok := scores[entityType]; ok {
			scores[entityType] = embeddingWeight*similarity + keywordWeight*keyword
		} else {
			scores[entityType] = similarity
		}
	}
}

// rankScores orders categories by descending score, ties broken by type name
// for determinism.
func rankScores(scores map[types.EntityType]float64) []types.TypeScore {
	ranked := make([]types.TypeScore, 0, len(scores))
	for entityType, score := range scores {
		ranked = append(ranked, types.TypeScore{Type: entityType, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Type < ranked[j].Type
	})
	return ranked
}

// defaultClassify is the rule-based fallback for mentions no scored category
// claimed. Suffix patterns cover the common clinical word formations.
func defaultClassify(normalized string) types.EntityType {
	switch {
	case strings.HasSuffix(normalized, "itis"),
		strings.HasSuffix(normalized, "osis"),
		strings.HasSuffix(normalized, "emia"),
		strings.HasSuffix(normalized, "pathy"):
		return types.EntityTypeCondition
	case strings.HasSuffix(normalized, "ectomy"),
		strings.HasSuffix(normalized, "oscopy"),
		strings.HasSuffix(normalized, "plasty"),
		strings.HasSuffix(normalized, "gram"):
		return types.EntityTypeProcedure
	case strings.HasSuffix(normalized, "cillin"),
		strings.HasSuffix(normalized, "statin"),
		strings.HasSuffix(normalized, "pril"),
		strings.HasSuffix(normalized, "olol"),
		strings.HasSuffix(normalized, "azole"):
		return types.EntityTypeMedication
	default:
		return types.EntityTypeUnknown
	}
}
