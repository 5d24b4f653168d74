package entity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/embedding"
	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

const (
	// fuzzyMatchThreshold is the Levenshtein ratio at which two entity names
	// are considered the same concept.
	fuzzyMatchThreshold = 0.9

	// lengthRatioFilter rejects candidate pairs whose lengths differ by more
	// than 30% before computing edit distance.
	lengthRatioFilter = 0.3

	// embeddingMatchThreshold is the cosine similarity at which two entity
	// names are considered the same concept.
	embeddingMatchThreshold = 0.85
)

// Deduplicator folds entity mention variants ("HTN", "htn", "hypertension")
// into canonical clusters. It is stateful and session-scoped: one instance
// accumulates clusters for the lifetime of its owner.
//
// Matching cascades from exact normalized-key lookup, to Levenshtein ratio
// (first cluster ≥0.9 wins), to optional embedding similarity (best cluster
// ≥0.85 wins). Clusters of different types never merge. Embedding matching
// is best-match rather than first-match because embeddings are expensive and
// worth being selective about; string comparisons are cheap so
// first-acceptable is fine.
//
// Stages 2-3 scan every same-type cluster linearly. Acceptable at session
// scale; a large-corpus deployment would want blocking by first letter or a
// phonetic key before the scan.
type Deduplicator struct {
	mu             sync.Mutex
	byKey          map[string]*types.EntityCluster
	byID           map[string]*types.EntityCluster
	order          map[types.EntityType][]*types.EntityCluster
	expansions     map[string]string
	provider       embedding.Provider
	logger         *zap.Logger
	now            func() time.Time
	fuzzyThreshold float64
	embedThreshold float64
}

// DeduplicatorOption configures a Deduplicator.
type DeduplicatorOption func(*Deduplicator)

// WithDedupEmbeddings enables the embedding-similarity matching stage.
func WithDedupEmbeddings(provider embedding.Provider) DeduplicatorOption {
	return func(d *Deduplicator) {
		d.provider = provider
	}
}

// WithDedupLogger sets the logger (default: no-op).
func WithDedupLogger(logger *zap.Logger) DeduplicatorOption {
	return func(d *Deduplicator) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithFuzzyMatchThreshold overrides the Levenshtein-ratio threshold.
// Values outside (0, 1] are ignored.
func WithFuzzyMatchThreshold(threshold float64) DeduplicatorOption {
	return func(d *Deduplicator) {
		if threshold > 0 && threshold <= 1 {
			d.fuzzyThreshold = threshold
		}
	}
}

// WithEmbeddingMatchThreshold overrides the cosine-similarity threshold.
// Values outside (0, 1] are ignored.
func WithEmbeddingMatchThreshold(threshold float64) DeduplicatorOption {
	return func(d *Deduplicator) {
		if threshold > 0 && threshold <= 1 {
			d.embedThreshold = threshold
		}
	}
}

// NewDeduplicator creates an empty deduplicator.
func NewDeduplicator(opts ...DeduplicatorOption) *Deduplicator {
	d := &Deduplicator{
		byKey:      make(map[string]*types.EntityCluster),
		byID:       make(map[string]*types.EntityCluster),
		order:      make(map[types.EntityType][]*types.EntityCluster),
		expansions:     wordExpansions,
		logger:         zap.NewNop(),
		now:            time.Now,
		fuzzyThreshold: fuzzyMatchThreshold,
		embedThreshold: embeddingMatchThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Normalize produces the lookup key form of an entity mention: lowercase,
// punctuation stripped except internal hyphens and apostrophes, and known
// abbreviations expanded word by word.
func (d *Deduplicator) Normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '-', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for i, word := range words {
		if expanded, ok := d.expansions[word]; ok {
			words[i] = expanded
		}
	}
	return strings.Join(words, " ")
}

// Deduplicate folds one entity mention into the cluster cache and returns the
// cluster it landed in. The whole lookup-then-update sequence runs under one
// lock so concurrent callers never race a "check then create" for the same
// new entity.
func (d *Deduplicator) Deduplicate(ctx context.Context, entityText string, entityType types.EntityType, documentID string, confidence float64) (*types.EntityCluster, error) {
	if strings.TrimSpace(entityText) == "" {
		return nil, fmt.Errorf("entity: %w: entity text is required", storage.ErrInvalidInput)
	}
	if entityType == "" {
		return nil, fmt.Errorf("entity: %w: entity type is required", storage.ErrInvalidInput)
	}

	normalized := d.Normalize(entityText)
	if normalized == "" {
		return nil, fmt.Errorf("entity: %w: entity text has no comparable content", storage.ErrInvalidInput)
	}

	// The embedding call happens outside the lock: it is a network call and
	// must not serialize unrelated deduplications.
	var vector []float32
	if d.provider != nil {
		var err error
		vector, err = d.provider.Embed(ctx, normalized)
		if err != nil {
			d.logger.Warn("entity embedding failed, dedup degrades to string matching",
				zap.String("entity", entityText), zap.Error(err))
			vector = nil
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := clusterKey(entityType, normalized)
	if cluster, ok := d.byKey[key]; ok {
		d.fold(cluster, entityText, documentID, confidence, key)
		return cluster, nil
	}

	if cluster := d.fuzzyMatch(entityType, normalized); cluster != nil {
		d.fold(cluster, entityText, documentID, confidence, key)
		return cluster, nil
	}

	if cluster := d.embeddingMatch(entityType, vector); cluster != nil {
		d.fold(cluster, entityText, documentID, confidence, key)
		return cluster, nil
	}

	now := d.now()
	cluster := &types.EntityCluster{
		CanonicalID:     uuid.NewString(),
		CanonicalName:   entityText,
		Type:            entityType,
		Variants:        map[string]bool{entityText: true},
		SourceDocuments: map[string]bool{},
		FirstSeen:       now,
		LastSeen:        now,
		MentionCount:    1,
		Confidence:      confidence,
		Embedding:       vector,
	}
	if documentID != "" {
		cluster.SourceDocuments[documentID] = true
	}
	d.byKey[key] = cluster
	d.byID[cluster.CanonicalID] = cluster
	d.order[entityType] = append(d.order[entityType], cluster)
	return cluster, nil
}

// Cluster returns a cluster by canonical ID.
func (d *Deduplicator) Cluster(canonicalID string) (*types.EntityCluster, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cluster, ok := d.byID[canonicalID]
	return cluster, ok
}

// Clusters returns every live cluster in creation order.
func (d *Deduplicator) Clusters() []*types.EntityCluster {
	d.mu.Lock()
	defer d.mu.Unlock()

	var clusters []*types.EntityCluster
	seen := make(map[string]bool)
	for _, perType := range d.order {
		for _, cluster := range perType {
			if !seen[cluster.CanonicalID] {
				seen[cluster.CanonicalID] = true
				clusters = append(clusters, cluster)
			}
		}
	}
	return clusters
}

// MergeClusters manually folds cluster b into cluster a: variants and source
// documents union, mention counts sum, the observation window widens, and
// confidence becomes the mention-weighted average. Cache entries pointing at
// b are repointed to a, not deleted, so stale IDs keep resolving.
func (d *Deduplicator) MergeClusters(idA, idB string) (*types.EntityCluster, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, okA := d.byID[idA]
	b, okB := d.byID[idB]
	if !okA || !okB {
		return nil, fmt.Errorf("entity: %w: cluster to merge", storage.ErrNotFound)
	}
	if a == b {
		return a, nil
	}
	if a.Type != b.Type {
		return nil, fmt.Errorf("entity: %w: cannot merge clusters of types %s and %s",
			storage.ErrInvalidInput, a.Type, b.Type)
	}

	for variant := range b.Variants {
		a.Variants[variant] = true
	}
	for doc := range b.SourceDocuments {
		a.SourceDocuments[doc] = true
	}
	if b.FirstSeen.Before(a.FirstSeen) {
		a.FirstSeen = b.FirstSeen
	}
	if b.LastSeen.After(a.LastSeen) {
		a.LastSeen = b.LastSeen
	}

	total := a.MentionCount + b.MentionCount
	if total > 0 {
		a.Confidence = (a.Confidence*float64(a.MentionCount) + b.Confidence*float64(b.MentionCount)) / float64(total)
	}
	a.MentionCount = total

	for key, cluster := range d.byKey {
		if cluster == b {
			d.byKey[key] = a
		}
	}
	d.byID[idB] = a

	perType := d.order[b.Type]
	for i, cluster := range perType {
		if cluster == b {
			d.order[b.Type] = append(perType[:i], perType[i+1:]...)
			break
		}
	}
	return a, nil
}

// fold records one more mention in an existing cluster and indexes it under
// the mention's normalized key so the next identical variant short-circuits
// to the exact-match stage.
func (d *Deduplicator) fold(cluster *types.EntityCluster, entityText, documentID string, confidence float64, key string) {
	cluster.Variants[entityText] = true
	if documentID != "" {
		cluster.SourceDocuments[documentID] = true
	}
	cluster.MentionCount++
	n := float64(cluster.MentionCount)
	cluster.Confidence = (cluster.Confidence*(n-1) + confidence) / n
	cluster.LastSeen = d.now()
	d.byKey[key] = cluster
}

// fuzzyMatch scans same-type clusters in creation order and returns the
// first whose canonical name reaches the Levenshtein-ratio threshold. A
// cheap length-ratio pre-filter skips pairs that cannot possibly match.
func (d *Deduplicator) fuzzyMatch(entityType types.EntityType, normalized string) *types.EntityCluster {
	for _, cluster := range d.order[entityType] {
		candidate := d.Normalize(cluster.CanonicalName)
		if candidate == "" {
			continue
		}
		longer, shorter := len(normalized), len(candidate)
		if shorter > longer {
			longer, shorter = shorter, longer
		}
		if float64(longer-shorter) > lengthRatioFilter*float64(longer) {
			continue
		}
		distance := levenshtein.ComputeDistance(normalized, candidate)
		if ratio := 1 - float64(distance)/float64(longer); ratio >= d.fuzzyThreshold {
			return cluster
		}
	}
	return nil
}

// embeddingMatch returns the same-type cluster whose canonical-name embedding
// is most similar to vector, provided it reaches the threshold.
func (d *Deduplicator) embeddingMatch(entityType types.EntityType, vector []float32) *types.EntityCluster {
	if len(vector) == 0 {
		return nil
	}
	var (
		best      *types.EntityCluster
		bestScore float64
	)
	for _, cluster := range d.order[entityType] {
		if len(cluster.Embedding) == 0 {
			continue
		}
		score := embedding.CosineSimilarity(vector, cluster.Embedding)
		if score >= d.embedThreshold && score > bestScore {
			best, bestScore = cluster, score
		}
	}
	return best
}

func clusterKey(entityType types.EntityType, normalized string) string {
	return string(entityType) + "\x00" + normalized
}
