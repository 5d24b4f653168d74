package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

// Embedder produces a vector representation of a piece of text. The embedding
// package provides the production implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WithEmbedder attaches the embedder used to vectorize query text for
// similarity search. Without one, VectorSearch degrades to empty results.
func WithEmbedder(e Embedder) Option {
	return func(s *Store) {
		s.embedder = e
	}
}

var (
	_ storage.VectorSearcher      = (*Store)(nil)
	_ storage.ChunkEmbeddingStore = (*Store)(nil)
)

// VectorSearch performs cosine-similarity search over chunk embeddings using
// the pgvector `<=>` operator. Scores are 1 - cosine_distance, clamped into
// [0, 1] so they share the keyword searcher's scale.
//
// Like KeywordSearch, this degrades rather than fails: when pgvector or the
// embedder is unavailable, or the query cannot be embedded, the result is an
// empty list, never an error that would abort the ranking pipeline.
func (s *Store) VectorSearch(ctx context.Context, queryText string, opts storage.SearchOptions) ([]types.ScoredChunk, error) {
	opts.Normalize()
	if queryText == "" || !s.pgvectorAvailable || s.embedder == nil {
		return []types.ScoredChunk{}, nil
	}

	queryVec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		s.logger.Warn("query embedding failed, returning empty vector results",
			zap.String("query", queryText), zap.Error(err))
		return []types.ScoredChunk{}, nil
	}
	if len(queryVec) == 0 {
		return []types.ScoredChunk{}, nil
	}

	var (
		conditions = []string{"embedding IS NOT NULL"}
		args       = []any{pgvector.NewVector(queryVec)}
	)
	if len(opts.FilterDocumentIDs) > 0 {
		args = append(args, pq.Array(opts.FilterDocumentIDs))
		conditions = append(conditions, fmt.Sprintf("document_id = ANY($%d::text[])", len(args)))
	}
	if len(opts.DocumentTypes) > 0 {
		args = append(args, pq.Array(opts.DocumentTypes))
		conditions = append(conditions, fmt.Sprintf("document_type = ANY($%d::text[])", len(args)))
	}
	for _, term := range opts.ExcludeTerms {
		args = append(args, "%"+term+"%")
		conditions = append(conditions, fmt.Sprintf("content NOT ILIKE $%d", len(args)))
	}

	args = append(args, opts.TopK)
	query := fmt.Sprintf(`
		SELECT document_id, chunk_index, content, created_at, metadata,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM chunks
		WHERE %s
		ORDER BY embedding <=> $1::vector, document_id, chunk_index
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Warn("vector search failed, returning empty results", zap.Error(err))
		return []types.ScoredChunk{}, nil
	}
	defer func() { _ = rows.Close() }()

	var results []types.ScoredChunk
	for rows.Next() {
		var (
			chunk        types.ScoredChunk
			createdAt    sql.NullTime
			metadataJSON sql.NullString
			similarity   float64
		)
		if err := rows.Scan(&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Text, &createdAt, &metadataJSON, &similarity); err != nil {
			s.logger.Warn("vector search scan failed, returning empty results", zap.Error(err))
			return []types.ScoredChunk{}, nil
		}
		if createdAt.Valid {
			chunk.CreatedAt = createdAt.Time
		}
		chunk.Metadata = s.decodeMetadata(metadataJSON)
		chunk.Score = clampScore(similarity)
		if chunk.Score < opts.MinScore {
			continue
		}
		results = append(results, chunk)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("vector search rows failed, returning empty results", zap.Error(err))
		return []types.ScoredChunk{}, nil
	}

	if results == nil {
		results = []types.ScoredChunk{}
	}
	return results, nil
}

// StoreChunkEmbedding stores or replaces the embedding vector for a chunk.
// The chunk row must already exist.
func (s *Store) StoreChunkEmbedding(ctx context.Context, documentID string, chunkIndex int, embedding []float32, model string) error {
	if documentID == "" {
		return fmt.Errorf("postgres: %w: document_id is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("postgres: %w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if !s.pgvectorAvailable {
		return fmt.Errorf("postgres: store embedding %s/%d: pgvector extension not available", documentID, chunkIndex)
	}

	const query = `
		UPDATE chunks
		SET embedding = $3, embedding_model = NULLIF($4, '')
		WHERE document_id = $1 AND chunk_index = $2
	`
	result, err := s.db.ExecContext(ctx, query, documentID, chunkIndex, pgvector.NewVector(embedding), model)
	if err != nil {
		return fmt.Errorf("postgres: store embedding %s/%d: %w", documentID, chunkIndex, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: store embedding rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// clampScore bounds a cosine similarity into [0, 1]. The raw value can be
// slightly negative for near-orthogonal vectors.
func clampScore(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
