package storage

import (
	"context"

	"github.com/medscribe/clinsearch/pkg/types"
)

// ChunkStore provides CRUD operations for the document-chunk index.
type ChunkStore interface {
	// StoreChunk creates or updates a chunk (upsert on (document_id, chunk_index)).
	StoreChunk(ctx context.Context, chunk *types.DocumentChunk) error

	// GetChunk retrieves a chunk by identity.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, documentID string, chunkIndex int) (*types.DocumentChunk, error)

	// DeleteDocument removes every chunk of a document. Returns the number
	// of chunks removed.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// KeywordSearcher executes full-text search against the chunk index.
//
// Implementations must degrade rather than fail: on backend errors they log
// and return an empty list, never propagate a hard failure to the ranking
// pipeline.
type KeywordSearcher interface {
	// KeywordSearch returns chunks scored in [0, 1], ordered by descending
	// rank score.
	KeywordSearch(ctx context.Context, opts SearchOptions) ([]types.ScoredChunk, error)
}

// VectorSearcher is the embedding-similarity collaborator. Scores must share
// the keyword searcher's [0, 1] scale so the result composer can combine
// them.
type VectorSearcher interface {
	// VectorSearch returns the topK chunks most similar to the query text.
	VectorSearch(ctx context.Context, queryText string, opts SearchOptions) ([]types.ScoredChunk, error)
}

// ChunkEmbeddingStore persists per-chunk embeddings for vector search.
type ChunkEmbeddingStore interface {
	// StoreChunkEmbedding stores or replaces the embedding for a chunk.
	StoreChunkEmbedding(ctx context.Context, documentID string, chunkIndex int, embedding []float32, model string) error
}

// FeedbackStore persists the append-only feedback log and its per-chunk
// aggregates. InsertFeedback must atomically update the aggregate row so
// point reads after a returned insert always see the new tally.
type FeedbackStore interface {
	// InsertFeedback appends a feedback record and upserts the chunk's
	// aggregate in the same transaction.
	InsertFeedback(ctx context.Context, record *types.FeedbackRecord) error

	// GetAggregate returns the vote tally for one chunk.
	// Returns a zero aggregate (not an error) when no feedback exists.
	GetAggregate(ctx context.Context, documentID string, chunkIndex int) (FeedbackAggregate, error)

	// GetDocumentAggregates returns tallies for every chunk of a document
	// that has feedback.
	GetDocumentAggregates(ctx context.Context, documentID string) ([]FeedbackAggregate, error)

	// Close releases any resources held by the store.
	Close() error
}
