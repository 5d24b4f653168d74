package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/internal/storage/postgres"
	"github.com/medscribe/clinsearch/pkg/types"
)

// postgresTestDSN returns the DSN for the test database. If POSTGRES_TEST_DSN
// is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database, applies the schema, truncates
// leftovers from earlier runs and registers cleanup.
func newTestStore(t *testing.T, opts ...postgres.Option) *postgres.Store {
	t.Helper()

	store, err := postgres.NewStore(postgresTestDSN(t), zap.NewNop(), opts...)
	require.NoError(t, err, "NewStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func newTestChunk(docID string, index int, text string) *types.DocumentChunk {
	return &types.DocumentChunk{
		DocumentID:   docID,
		ChunkIndex:   index,
		Text:         text,
		DocumentType: "txt",
		CreatedAt:    time.Now().Add(-time.Hour),
	}
}

func TestStoreChunk_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := newTestChunk("note-1", 0, "patient reports persistent cough")
	chunk.Metadata = map[string]interface{}{"section": "hpi"}
	require.NoError(t, store.StoreChunk(ctx, chunk))

	got, err := store.GetChunk(ctx, "note-1", 0)
	require.NoError(t, err)
	assert.Equal(t, chunk.Text, got.Text)
	assert.Equal(t, "txt", got.DocumentType)
	assert.Equal(t, "hpi", got.Metadata["section"])

	// Upsert replaces in place.
	chunk.Text = "patient reports cough resolved"
	require.NoError(t, store.StoreChunk(ctx, chunk))
	got, err = store.GetChunk(ctx, "note-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "patient reports cough resolved", got.Text)
}

func TestGetChunk_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetChunk(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteDocument_ReportsCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreChunk(ctx, newTestChunk("doc", 0, "first")))
	require.NoError(t, store.StoreChunk(ctx, newTestChunk("doc", 1, "second")))

	n, err := store.DeleteDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKeywordSearch_MatchesAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreChunk(ctx, newTestChunk("a", 0, "metformin dosage adjusted for type 2 diabetes")))
	require.NoError(t, store.StoreChunk(ctx, newTestChunk("b", 0, "lisinopril prescribed for hypertension")))
	pdf := newTestChunk("c", 0, "diabetes education handout reviewed")
	pdf.DocumentType = "pdf"
	require.NoError(t, store.StoreChunk(ctx, pdf))

	results, err := store.KeywordSearch(ctx, storage.SearchOptions{Query: "diabetes"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}

	results, err = store.KeywordSearch(ctx, storage.SearchOptions{
		Query:         "diabetes",
		DocumentTypes: []string{"pdf"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].DocumentID)

	results, err = store.KeywordSearch(ctx, storage.SearchOptions{
		Query:        "diabetes",
		ExcludeTerms: []string{"handout"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].DocumentID)
}

func TestKeywordSearch_NoMatchIsEmptyNotError(t *testing.T) {
	store := newTestStore(t)

	results, err := store.KeywordSearch(context.Background(), storage.SearchOptions{Query: "xyzzy"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFeedback_InsertAndAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	votes := []types.FeedbackType{
		types.FeedbackUpvote, types.FeedbackUpvote,
		types.FeedbackDownvote, types.FeedbackFlag,
	}
	for _, v := range votes {
		err := store.InsertFeedback(ctx, &types.FeedbackRecord{
			DocumentID: "doc", ChunkIndex: 2, Type: v,
		})
		require.NoError(t, err)
	}

	agg, err := store.GetAggregate(ctx, "doc", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Upvotes)
	assert.Equal(t, 1, agg.Downvotes)
	assert.Equal(t, 1, agg.Flags)

	// No feedback yields a zero aggregate, not an error.
	agg, err = store.GetAggregate(ctx, "doc", 99)
	require.NoError(t, err)
	assert.Zero(t, agg.TotalVotes())
}

func TestInsertFeedback_RejectsUnknownType(t *testing.T) {
	store := newTestStore(t)

	err := store.InsertFeedback(context.Background(), &types.FeedbackRecord{
		DocumentID: "doc", ChunkIndex: 0, Type: "meh",
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
