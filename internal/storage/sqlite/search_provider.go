package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

var (
	_ storage.KeywordSearcher = (*Store)(nil)
	_ storage.VectorSearcher  = (*Store)(nil)
)

// KeywordSearch performs FTS5-backed full-text search across chunk content.
//
// FTS5 rank values are negative bm25 scores (more negative == better match),
// so ordering by rank ASC gives the best results first. The magnitude is
// unbounded; normalizeRank maps it into the [0, 1] scale shared with the
// vector searcher.
//
// Search degradation must never crash the caller: any backend failure is
// logged as a warning and an empty result list is returned.
func (s *Store) KeywordSearch(ctx context.Context, opts storage.SearchOptions) ([]types.ScoredChunk, error) {
	opts.Normalize()
	if opts.Query == "" {
		return []types.ScoredChunk{}, nil
	}

	ftsQuery := buildMatchExpression(opts)
	if ftsQuery == "" {
		return []types.ScoredChunk{}, nil
	}

	var (
		conditions = []string{"chunks_fts MATCH ?"}
		args       = []any{ftsQuery}
	)
	appendInCondition(&conditions, &args, "c.document_id", opts.FilterDocumentIDs)
	appendInCondition(&conditions, &args, "c.document_type", opts.DocumentTypes)
	for _, term := range opts.ExcludeTerms {
		conditions = append(conditions, "c.content NOT LIKE ?")
		args = append(args, "%"+term+"%")
	}
	args = append(args, opts.TopK)

	query := fmt.Sprintf(`
		SELECT c.document_id, c.chunk_index, c.content, c.created_at, c.metadata, fts.rank
		FROM chunks_fts fts
		JOIN chunks c ON c.rowid = fts.rowid
		WHERE %s
		ORDER BY fts.rank, c.document_id, c.chunk_index
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		// FTS5 can still error on malformed input that slipped past
		// sanitisation.
		s.logger.Warn("keyword search failed, returning empty results",
			zap.String("query", opts.Query), zap.Error(err))
		return []types.ScoredChunk{}, nil
	}
	defer func() { _ = rows.Close() }()

	var results []types.ScoredChunk
	for rows.Next() {
		var (
			chunk        types.ScoredChunk
			createdAt    sql.NullString
			metadataJSON sql.NullString
			rank         float64
		)
		if err := rows.Scan(&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Text, &createdAt, &metadataJSON, &rank); err != nil {
			s.logger.Warn("keyword search scan failed, returning empty results", zap.Error(err))
			return []types.ScoredChunk{}, nil
		}
		chunk.CreatedAt = parseStoredTime(createdAt)
		chunk.Metadata = s.decodeMetadata(metadataJSON)
		chunk.Score = normalizeRank(rank)
		if chunk.Score < opts.MinScore {
			continue
		}
		results = append(results, chunk)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("keyword search rows failed, returning empty results", zap.Error(err))
		return []types.ScoredChunk{}, nil
	}

	if results == nil {
		results = []types.ScoredChunk{}
	}
	return results, nil
}

// vectorSearchMaxCandidates caps how many embeddings are loaded into memory
// during a vector search. Candidates are selected newest first. For clinical
// note archives below ~10k chunks this limit is never hit; larger corpora
// should use the postgres backend with pgvector.
const vectorSearchMaxCandidates = 10_000

// VectorSearch performs cosine-similarity search over chunk embeddings.
// Embeddings are loaded into Go memory and ranked; there is no ANN index.
//
// Like KeywordSearch, this degrades rather than fails: a missing embedder or
// an embedding failure yields an empty result list, never an error.
func (s *Store) VectorSearch(ctx context.Context, queryText string, opts storage.SearchOptions) ([]types.ScoredChunk, error) {
	opts.Normalize()
	if queryText == "" || s.embedder == nil {
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
		args       []any
	)
	appendInCondition(&conditions, &args, "document_id", opts.FilterDocumentIDs)
	appendInCondition(&conditions, &args, "document_type", opts.DocumentTypes)
	for _, term := range opts.ExcludeTerms {
		conditions = append(conditions, "content NOT LIKE ?")
		args = append(args, "%"+term+"%")
	}
	args = append(args, vectorSearchMaxCandidates)

	query := fmt.Sprintf(`
		SELECT document_id, chunk_index, content, created_at, metadata, embedding
		FROM chunks
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Warn("vector search failed, returning empty results", zap.Error(err))
		return []types.ScoredChunk{}, nil
	}
	defer func() { _ = rows.Close() }()

	var candidates []types.ScoredChunk
	for rows.Next() {
		var (
			chunk        types.ScoredChunk
			createdAt    sql.NullString
			metadataJSON sql.NullString
			blob         []byte
		)
		if err := rows.Scan(&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Text, &createdAt, &metadataJSON, &blob); err != nil {
			s.logger.Warn("vector search scan failed, returning empty results", zap.Error(err))
			return []types.ScoredChunk{}, nil
		}
		embedding, err := deserializeEmbedding(blob)
		if err != nil {
			continue
		}
		chunk.CreatedAt = parseStoredTime(createdAt)
		chunk.Metadata = s.decodeMetadata(metadataJSON)
		chunk.Score = clampScore(cosineSimilarity(queryVec, embedding))
		if chunk.Score < opts.MinScore {
			continue
		}
		candidates = append(candidates, chunk)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("vector search rows failed, returning empty results", zap.Error(err))
		return []types.ScoredChunk{}, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].DocumentID != candidates[j].DocumentID {
			return candidates[i].DocumentID < candidates[j].DocumentID
		}
		return candidates[i].ChunkIndex < candidates[j].ChunkIndex
	})

	if len(candidates) > opts.TopK {
		candidates = candidates[:opts.TopK]
	}
	if candidates == nil {
		candidates = []types.ScoredChunk{}
	}
	return candidates, nil
}

// buildMatchExpression converts a free-form query into a safe FTS5 MATCH
// expression. FTS5 syntax is powerful but fragile: an unbalanced quote or
// stray operator keyword causes "fts5: syntax error", so special characters
// are stripped and terms are joined explicitly.
//
// Plain mode ANDs the query terms and expansion terms. Natural mode ORs them
// for broader recall.
func buildMatchExpression(opts storage.SearchOptions) string {
	operator := " AND "
	if opts.Mode == storage.ModeNatural {
		operator = " OR "
	}

	replacer := strings.NewReplacer(
		`"`, ` `,
		`'`, ` `,
		`(`, ` `,
		`)`, ` `,
		`*`, ` `,
		`-`, ` `,
		`^`, ` `,
		`?`, ` `,
		`:`, ` `,
		`.`, ` `,
		`,`, ` `,
	)

	var terms []string
	for _, raw := range append(strings.Fields(opts.Query), opts.ExpandedTerms...) {
		for _, word := range strings.Fields(strings.ToLower(replacer.Replace(raw))) {
			terms = append(terms, `"`+word+`"`)
		}
	}
	return strings.Join(terms, operator)
}

// appendInCondition adds an "IN (?, ...)" condition when values is non-empty.
func appendInCondition(conditions *[]string, args *[]any, column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, v)
	}
	*conditions = append(*conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
}

// normalizeRank maps an FTS5 rank (negative bm25, unbounded magnitude) into
// [0, 1] with bm25/(bm25+1). The mapping is monotone, so relative ordering
// is preserved.
func normalizeRank(rank float64) float64 {
	bm25 := -rank
	if bm25 <= 0 {
		return 0
	}
	return bm25 / (bm25 + 1)
}
