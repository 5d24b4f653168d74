package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

// memStore is an in-memory FeedbackStore for tests.
type memStore struct {
	aggregates map[types.ChunkKey]storage.FeedbackAggregate
	failReads  bool
	getCalls   int
}

func newMemStore() *memStore {
	return &memStore{aggregates: make(map[types.ChunkKey]storage.FeedbackAggregate)}
}

func (s *memStore) InsertFeedback(_ context.Context, record *types.FeedbackRecord) error {
	key := types.ChunkKey{DocumentID: record.DocumentID, ChunkIndex: record.ChunkIndex}
	agg := s.aggregates[key]
	agg.DocumentID = record.DocumentID
	agg.ChunkIndex = record.ChunkIndex
	switch record.Type {
	case types.FeedbackUpvote:
		agg.Upvotes++
	case types.FeedbackDownvote:
		agg.Downvotes++
	case types.FeedbackFlag:
		agg.Flags++
	}
	s.aggregates[key] = agg
	return nil
}

func (s *memStore) GetAggregate(_ context.Context, documentID string, chunkIndex int) (storage.FeedbackAggregate, error) {
	s.getCalls++
	if s.failReads {
		return storage.FeedbackAggregate{}, errors.New("store down")
	}
	key := types.ChunkKey{DocumentID: documentID, ChunkIndex: chunkIndex}
	if agg, ok := s.aggregates[key]; ok {
		return agg, nil
	}
	return storage.FeedbackAggregate{DocumentID: documentID, ChunkIndex: chunkIndex}, nil
}

func (s *memStore) GetDocumentAggregates(_ context.Context, documentID string) ([]storage.FeedbackAggregate, error) {
	var out []storage.FeedbackAggregate
	for _, agg := range s.aggregates {
		if agg.DocumentID == documentID {
			out = append(out, agg)
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func record(docID string, chunkIndex int, feedbackType types.FeedbackType) *types.FeedbackRecord {
	return &types.FeedbackRecord{DocumentID: docID, ChunkIndex: chunkIndex, Type: feedbackType}
}

func TestGetBoost_TwoUpOneDown(t *testing.T) {
	store := newMemStore()
	manager := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackUpvote)))
	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackUpvote)))
	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackDownvote)))

	boost := manager.GetBoost(ctx, "doc", 0)
	// net = 1/3, confidence = 3/3, flagPenalty = 1 → boost = 1/3 × 0.3 = 0.1
	assert.InDelta(t, 0.1, boost.BoostFactor, 1e-9)
	assert.Equal(t, 1.0, boost.Confidence)
	assert.Equal(t, 2, boost.Upvotes)
	assert.Equal(t, 1, boost.Downvotes)
}

func TestGetBoost_NoVotesIsNeutral(t *testing.T) {
	manager := NewManager(newMemStore(), DefaultConfig(), nil)

	boost := manager.GetBoost(context.Background(), "doc", 7)
	assert.Zero(t, boost.BoostFactor)
	assert.Zero(t, boost.Confidence)
}

func TestGetBoost_BoundedByMaxBoost(t *testing.T) {
	store := newMemStore()
	manager := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackUpvote)))
	}
	boost := manager.GetBoost(ctx, "doc", 0)
	assert.InDelta(t, DefaultMaxBoost, boost.BoostFactor, 1e-9)

	for i := 0; i < 40; i++ {
		require.NoError(t, manager.RecordFeedback(ctx, record("doc", 1, types.FeedbackDownvote)))
	}
	boost = manager.GetBoost(ctx, "doc", 1)
	assert.InDelta(t, -DefaultMaxBoost, boost.BoostFactor, 1e-9)
}

func TestGetBoost_UpvoteNeverDecreases_FlagNeverIncreases(t *testing.T) {
	store := newMemStore()
	manager := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackUpvote)))
	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackDownvote)))
	before := manager.GetBoost(ctx, "doc", 0).BoostFactor

	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackUpvote)))
	afterUpvote := manager.GetBoost(ctx, "doc", 0).BoostFactor
	assert.GreaterOrEqual(t, afterUpvote, before)

	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackFlag)))
	afterFlag := manager.GetBoost(ctx, "doc", 0).BoostFactor
	assert.LessOrEqual(t, afterFlag, afterUpvote)
}

func TestGetBoost_CachesUntilInvalidated(t *testing.T) {
	store := newMemStore()
	manager := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackUpvote)))

	manager.GetBoost(ctx, "doc", 0)
	manager.GetBoost(ctx, "doc", 0)
	assert.Equal(t, 1, store.getCalls, "second read must come from cache")

	// A fresh vote invalidates; the next read recomputes.
	require.NoError(t, manager.RecordFeedback(ctx, record("doc", 0, types.FeedbackUpvote)))
	manager.GetBoost(ctx, "doc", 0)
	assert.Equal(t, 2, store.getCalls)
}

func TestGetBoost_StoreFailureDegradesToNeutral(t *testing.T) {
	store := newMemStore()
	store.failReads = true
	manager := NewManager(store, DefaultConfig(), nil)

	boost := manager.GetBoost(context.Background(), "doc", 0)
	assert.Zero(t, boost.BoostFactor)
	assert.Zero(t, boost.Confidence)
}

func TestRecordFeedback_RejectsInvalidInput(t *testing.T) {
	manager := NewManager(newMemStore(), DefaultConfig(), nil)
	ctx := context.Background()

	err := manager.RecordFeedback(ctx, record("", 0, types.FeedbackUpvote))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = manager.RecordFeedback(ctx, record("doc", 0, "love"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestApplyBoosts_AdjustsAndResorts(t *testing.T) {
	store := newMemStore()
	manager := NewManager(store, DefaultConfig(), nil)
	ctx := context.Background()

	// doc-b gets a strong positive boost: 3 upvotes → factor 0.3, conf 1.0.
	for i := 0; i < 3; i++ {
		require.NoError(t, manager.RecordFeedback(ctx, record("doc-b", 0, types.FeedbackUpvote)))
	}

	results := []types.ScoredChunk{
		{DocumentID: "doc-a", ChunkIndex: 0, Score: 0.6},
		{DocumentID: "doc-b", ChunkIndex: 0, Score: 0.5},
	}
	adjusted := manager.ApplyBoosts(ctx, results)

	require.Len(t, adjusted, 2)
	assert.Equal(t, "doc-b", adjusted[0].DocumentID, "boosted chunk overtakes")
	// Confidence applies twice: once inside the factor, once at apply time.
	assert.InDelta(t, 0.8, adjusted[0].Score, 1e-9)

	// Input slice is untouched.
	assert.Equal(t, 0.5, results[1].Score)
}

func TestApplyBoosts_DeterministicTieBreak(t *testing.T) {
	manager := NewManager(newMemStore(), DefaultConfig(), nil)

	results := []types.ScoredChunk{
		{DocumentID: "doc-b", ChunkIndex: 1, Score: 0.5},
		{DocumentID: "doc-a", ChunkIndex: 2, Score: 0.5},
		{DocumentID: "doc-a", ChunkIndex: 0, Score: 0.5},
	}
	adjusted := manager.ApplyBoosts(context.Background(), results)

	assert.Equal(t, "doc-a", adjusted[0].DocumentID)
	assert.Equal(t, 0, adjusted[0].ChunkIndex)
	assert.Equal(t, "doc-a", adjusted[1].DocumentID)
	assert.Equal(t, 2, adjusted[1].ChunkIndex)
	assert.Equal(t, "doc-b", adjusted[2].DocumentID)
}
