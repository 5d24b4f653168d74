package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/clinsearch/internal/feedback"
	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// fakeSearcher returns canned results and records the options it was
// called with.
type fakeSearcher struct {
	results  []types.ScoredChunk
	lastOpts storage.SearchOptions
	calls    int
}

func (f *fakeSearcher) KeywordSearch(_ context.Context, opts storage.SearchOptions) ([]types.ScoredChunk, error) {
	f.calls++
	f.lastOpts = opts
	return f.results, nil
}

func (f *fakeSearcher) VectorSearch(_ context.Context, _ string, opts storage.SearchOptions) ([]types.ScoredChunk, error) {
	f.calls++
	f.lastOpts = opts
	return f.results, nil
}

// fakeFeedbackStore holds fixed aggregates for boost computation.
type fakeFeedbackStore struct {
	aggregates map[types.ChunkKey]storage.FeedbackAggregate
}

func (s *fakeFeedbackStore) InsertFeedback(context.Context, *types.FeedbackRecord) error { return nil }

func (s *fakeFeedbackStore) GetAggregate(_ context.Context, documentID string, chunkIndex int) (storage.FeedbackAggregate, error) {
	key := types.ChunkKey{DocumentID: documentID, ChunkIndex: chunkIndex}
	if agg, ok := s.aggregates[key]; ok {
		return agg, nil
	}
	return storage.FeedbackAggregate{DocumentID: documentID, ChunkIndex: chunkIndex}, nil
}

func (s *fakeFeedbackStore) GetDocumentAggregates(context.Context, string) ([]storage.FeedbackAggregate, error) {
	return nil, nil
}

func (s *fakeFeedbackStore) Close() error { return nil }

func chunk(docID string, index int, score float64, createdAt time.Time) types.ScoredChunk {
	return types.ScoredChunk{DocumentID: docID, ChunkIndex: index, Score: score, CreatedAt: createdAt}
}

func TestSearch_RejectsEmptyQuery(t *testing.T) {
	service := NewSearchService(&fakeSearcher{}, WithClock(clock))

	_, err := service.Search(context.Background(), SearchRequest{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSearch_PassesParsedFiltersToSearcher(t *testing.T) {
	keyword := &fakeSearcher{}
	service := NewSearchService(keyword, WithClock(clock))

	resp, err := service.Search(context.Background(), SearchRequest{
		Query: `diabetes type:pdf -draft entity:medication:metformin,insulin score:>0.2`,
		TopK:  5,
	})
	require.NoError(t, err)

	assert.Equal(t, "diabetes", keyword.lastOpts.Query)
	assert.Equal(t, []string{"pdf"}, keyword.lastOpts.DocumentTypes)
	assert.Equal(t, []string{"draft"}, keyword.lastOpts.ExcludeTerms)
	assert.Equal(t, []string{"insulin", "metformin"}, keyword.lastOpts.ExpandedTerms)
	assert.Equal(t, 0.2, keyword.lastOpts.MinScore)
	assert.Equal(t, 5, keyword.lastOpts.TopK)
	assert.Equal(t, map[string]bool{"pdf": true}, resp.Parsed.DocumentTypes)
}

func TestSearch_MergesKeywordAndVectorByMaxScore(t *testing.T) {
	recent := fixedNow.Add(-24 * time.Hour)
	keyword := &fakeSearcher{results: []types.ScoredChunk{
		chunk("doc-a", 0, 0.4, recent),
		chunk("doc-b", 0, 0.9, recent),
	}}
	vector := &fakeSearcher{results: []types.ScoredChunk{
		chunk("doc-a", 0, 0.7, recent), // same chunk, higher score wins
		chunk("doc-c", 0, 0.5, recent),
	}}
	service := NewSearchService(keyword, WithVectorSearcher(vector), WithClock(clock))

	resp, err := service.Search(context.Background(), SearchRequest{Query: "chest pain"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	scores := map[string]float64{}
	for _, c := range resp.Results {
		scores[c.DocumentID] = c.Score
	}
	// Day-old chunks decay at the 0.95 ceiling, so merged scores scale by it.
	assert.InDelta(t, 0.7*0.95, scores["doc-a"], 1e-9)
	assert.InDelta(t, 0.9*0.95, scores["doc-b"], 1e-9)
	assert.InDelta(t, 0.5*0.95, scores["doc-c"], 1e-9)
}

func TestSearch_ExplicitDateRangeFiltersWithoutDecay(t *testing.T) {
	inside := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	outside := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	keyword := &fakeSearcher{results: []types.ScoredChunk{
		chunk("doc-in", 0, 0.8, inside),
		chunk("doc-out", 0, 0.9, outside),
		chunk("doc-undated", 0, 0.7, time.Time{}),
	}}
	service := NewSearchService(keyword, WithClock(clock))

	resp, err := service.Search(context.Background(), SearchRequest{Query: "progress notes date:2024"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "doc-in", resp.Results[0].DocumentID)
	assert.Equal(t, 0.8, resp.Results[0].Score, "range filtering must not decay scores")
	assert.Equal(t, "doc-undated", resp.Results[1].DocumentID, "untimestamped chunks survive the filter")
	assert.True(t, resp.Temporal.HasTemporalReference)
}

func TestSearch_DecayReordersStaleResults(t *testing.T) {
	keyword := &fakeSearcher{results: []types.ScoredChunk{
		chunk("doc-old", 0, 0.9, fixedNow.AddDate(-3, 0, 0)),
		chunk("doc-new", 0, 0.7, fixedNow.AddDate(0, 0, -10)),
	}}
	service := NewSearchService(keyword, WithClock(clock))

	resp, err := service.Search(context.Background(), SearchRequest{Query: "medication list"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	// Three years of age hits the decay floor: 0.9 × 0.5 = 0.45, while the
	// ten-day-old chunk scores 0.7 × 0.95 = 0.665.
	assert.Equal(t, "doc-new", resp.Results[0].DocumentID)
	assert.Equal(t, "doc-old", resp.Results[1].DocumentID)
	assert.InDelta(t, 0.45, resp.Results[1].Score, 1e-9)
}

func TestSearch_FeedbackBoostLiftsChunk(t *testing.T) {
	recent := fixedNow.Add(-24 * time.Hour)
	keyword := &fakeSearcher{results: []types.ScoredChunk{
		chunk("doc-plain", 0, 0.6, recent),
		chunk("doc-loved", 0, 0.5, recent),
	}}
	store := &fakeFeedbackStore{aggregates: map[types.ChunkKey]storage.FeedbackAggregate{
		{DocumentID: "doc-loved", ChunkIndex: 0}: {
			DocumentID: "doc-loved", ChunkIndex: 0, Upvotes: 3,
		},
	}}
	manager := feedback.NewManager(store, feedback.DefaultConfig(), nil)
	service := NewSearchService(keyword, WithFeedback(manager), WithClock(clock))

	resp, err := service.Search(context.Background(), SearchRequest{Query: "discharge summary"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "doc-loved", resp.Results[0].DocumentID, "boosted chunk overtakes")
}

func TestSearch_TruncatesToTopK(t *testing.T) {
	var results []types.ScoredChunk
	for i := 0; i < 30; i++ {
		results = append(results, chunk("doc", i, 0.5, fixedNow))
	}
	keyword := &fakeSearcher{results: results}
	service := NewSearchService(keyword, WithClock(clock))

	resp, err := service.Search(context.Background(), SearchRequest{Query: "visit", TopK: 7})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 7)
}
