// Package feedback maintains relevance boosts derived from user votes on
// search results. Boosts are bounded additive score adjustments recomputed
// synchronously on every vote.
package feedback

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

const (
	// DefaultMinVotesForBoost is the vote count at which boost confidence
	// reaches 1.0.
	DefaultMinVotesForBoost = 3

	// DefaultFlagPenalty scales how strongly flags erode trust relative to
	// vote volume.
	DefaultFlagPenalty = 0.5

	// DefaultMaxBoost bounds how far feedback can shift a score.
	DefaultMaxBoost = 0.3
)

// Config holds the boost formula constants.
type Config struct {
	MinVotesForBoost int
	FlagPenalty      float64
	MaxBoost         float64
}

// DefaultConfig returns the standard boost constants.
func DefaultConfig() Config {
	return Config{
		MinVotesForBoost: DefaultMinVotesForBoost,
		FlagPenalty:      DefaultFlagPenalty,
		MaxBoost:         DefaultMaxBoost,
	}
}

// Manager records feedback and serves per-chunk relevance boosts. One mutex
// guards both the store write and the boost cache so a reader can never
// observe a cached boost computed from before a feedback write that has
// already returned.
type Manager struct {
	store  storage.FeedbackStore
	config Config
	logger *zap.Logger

	mu    sync.Mutex
	cache map[types.ChunkKey]types.RelevanceBoost
}

// NewManager creates a feedback manager on top of a feedback store.
func NewManager(store storage.FeedbackStore, config Config, logger *zap.Logger) *Manager {
	if config.MinVotesForBoost <= 0 {
		config.MinVotesForBoost = DefaultMinVotesForBoost
	}
	if config.FlagPenalty <= 0 {
		config.FlagPenalty = DefaultFlagPenalty
	}
	if config.MaxBoost <= 0 {
		config.MaxBoost = DefaultMaxBoost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		config: config,
		logger: logger,
		cache:  make(map[types.ChunkKey]types.RelevanceBoost),
	}
}

// RecordFeedback appends one vote and invalidates the chunk's cached boost.
// Once this returns, GetBoost reflects the new vote.
func (m *Manager) RecordFeedback(ctx context.Context, record *types.FeedbackRecord) error {
	if record == nil || record.DocumentID == "" {
		return fmt.Errorf("feedback: %w: record requires a document_id", storage.ErrInvalidInput)
	}
	if !record.Type.Valid() {
		return fmt.Errorf("feedback: %w: unknown feedback type %q", storage.ErrInvalidInput, record.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.InsertFeedback(ctx, record); err != nil {
		return fmt.Errorf("feedback: record: %w", err)
	}
	delete(m.cache, types.ChunkKey{DocumentID: record.DocumentID, ChunkIndex: record.ChunkIndex})
	return nil
}

// GetBoost returns the relevance boost for one chunk, computing and caching
// it from the aggregate tally on a miss. A store failure degrades to a
// neutral zero boost rather than failing the ranking pipeline.
func (m *Manager) GetBoost(ctx context.Context, documentID string, chunkIndex int) types.RelevanceBoost {
	key := types.ChunkKey{DocumentID: documentID, ChunkIndex: chunkIndex}

	m.mu.Lock()
	defer m.mu.Unlock()

	if boost, ok := m.cache[key]; ok {
		return boost
	}

	agg, err := m.store.GetAggregate(ctx, documentID, chunkIndex)
	if err != nil {
		m.logger.Warn("feedback aggregate lookup failed, using neutral boost",
			zap.String("document_id", documentID), zap.Int("chunk_index", chunkIndex), zap.Error(err))
		return types.RelevanceBoost{DocumentID: documentID, ChunkIndex: chunkIndex}
	}

	boost := m.computeBoost(agg)
	m.cache[key] = boost
	return boost
}

// ApplyBoosts returns a copy of results with each chunk's score adjusted by
// boost_factor x confidence and re-sorted by adjusted score. Confidence is
// already baked into boost_factor, so it is applied twice here; preserved
// reference behavior, pending product-owner clarification.
func (m *Manager) ApplyBoosts(ctx context.Context, results []types.ScoredChunk) []types.ScoredChunk {
	adjusted := make([]types.ScoredChunk, len(results))
	copy(adjusted, results)

	for i := range adjusted {
		boost := m.GetBoost(ctx, adjusted[i].DocumentID, adjusted[i].ChunkIndex)
		adjusted[i].Score += boost.BoostFactor * boost.Confidence
	}

	sort.Slice(adjusted, func(i, j int) bool {
		if adjusted[i].Score != adjusted[j].Score {
			return adjusted[i].Score > adjusted[j].Score
		}
		if adjusted[i].DocumentID != adjusted[j].DocumentID {
			return adjusted[i].DocumentID < adjusted[j].DocumentID
		}
		return adjusted[i].ChunkIndex < adjusted[j].ChunkIndex
	})
	return adjusted
}

// computeBoost derives the boost from a vote tally:
//
//	net         = (up - down) / (up + down)        zero when no votes
//	confidence  = min(1, votes / MinVotesForBoost)
//	flagPenalty = max(0, 1 - flags*FlagPenalty/max(1, votes))
//	boost       = clamp(net * MaxBoost * confidence * flagPenalty, ±MaxBoost)
func (m *Manager) computeBoost(agg storage.FeedbackAggregate) types.RelevanceBoost {
	boost := types.RelevanceBoost{
		DocumentID: agg.DocumentID,
		ChunkIndex: agg.ChunkIndex,
		Upvotes:    agg.Upvotes,
		Downvotes:  agg.Downvotes,
		Flags:      agg.Flags,
	}

	votes := agg.TotalVotes()
	if votes == 0 && agg.Flags == 0 {
		return boost
	}

	var net float64
	if votes > 0 {
		net = float64(agg.Upvotes-agg.Downvotes) / float64(votes)
	}

	confidence := float64(votes) / float64(m.config.MinVotesForBoost)
	if confidence > 1 {
		confidence = 1
	}
	boost.Confidence = confidence

	divisor := votes
	if divisor < 1 {
		divisor = 1
	}
	flagPenalty := 1 - float64(agg.Flags)*m.config.FlagPenalty/float64(divisor)
	if flagPenalty < 0 {
		flagPenalty = 0
	}

	factor := net * m.config.MaxBoost * confidence * flagPenalty
	if factor > m.config.MaxBoost {
		factor = m.config.MaxBoost
	}
	if factor < -m.config.MaxBoost {
		factor = -m.config.MaxBoost
	}
	boost.BoostFactor = factor
	return boost
}
