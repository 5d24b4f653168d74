package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

// Ensure *Store implements storage.KeywordSearcher at compile time.
var _ storage.KeywordSearcher = (*Store)(nil)

// tsTermRe keeps only characters safe to embed in a to_tsquery expression.
var tsTermRe = regexp.MustCompile(`[^\w]+`)

// KeywordSearch performs tsvector full-text search over the chunk index,
// ranked by ts_rank_cd (cover density). Raw rank values are multiplied by
// the store's rank multiplier and capped at 1.0 so keyword scores share the
// vector searcher's [0, 1] scale.
//
// Search degradation must never crash the caller: any backend failure is
// logged as a warning and an empty result list is returned.
func (s *Store) KeywordSearch(ctx context.Context, opts storage.SearchOptions) ([]types.ScoredChunk, error) {
	opts.Normalize()
	if opts.Query == "" {
		return []types.ScoredChunk{}, nil
	}

	tsquery, tsFunc := buildSearchExpression(opts)
	if tsquery == "" {
		return []types.ScoredChunk{}, nil
	}

	var (
		conditions = []string{fmt.Sprintf("content_tsv @@ %s('english', $1)", tsFunc)}
		args       = []any{tsquery}
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
		       ts_rank_cd(content_tsv, %s('english', $1)) AS rank
		FROM chunks
		WHERE %s
		ORDER BY rank DESC, document_id, chunk_index
		LIMIT $%d
	`, tsFunc, strings.Join(conditions, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Warn("keyword search failed, returning empty results",
			zap.String("query", opts.Query), zap.Error(err))
		return []types.ScoredChunk{}, nil
	}
	defer func() { _ = rows.Close() }()

	var results []types.ScoredChunk
	for rows.Next() {
		var (
			chunk        types.ScoredChunk
			createdAt    sql.NullTime
			metadataJSON sql.NullString
			rank         float64
		)
		if err := rows.Scan(&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Text, &createdAt, &metadataJSON, &rank); err != nil {
			s.logger.Warn("keyword search scan failed, returning empty results", zap.Error(err))
			return []types.ScoredChunk{}, nil
		}
		if createdAt.Valid {
			chunk.CreatedAt = createdAt.Time
		}
		chunk.Metadata = s.decodeMetadata(metadataJSON)
		chunk.Score = normalizeRank(rank, s.rankMultiplier)
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

// buildSearchExpression constructs the tsquery string and the parser function
// to apply it with.
//
// Plain mode ANDs sanitized query terms and up to five expansion terms
// (to_tsquery). Natural mode keeps the user's AND/OR/-exclusion/quoted-phrase
// syntax and ORs expansion terms as quoted phrases (websearch_to_tsquery).
func buildSearchExpression(opts storage.SearchOptions) (expr string, tsFunc string) {
	switch opts.Mode {
	case storage.ModeNatural:
		parts := []string{opts.Query}
		for _, term := range opts.ExpandedTerms {
			term = strings.TrimSpace(term)
			if term != "" {
				parts = append(parts, fmt.Sprintf("%q", term))
			}
		}
		return strings.Join(parts, " OR "), "websearch_to_tsquery"
	default:
		var terms []string
		for _, raw := range append(strings.Fields(opts.Query), opts.ExpandedTerms...) {
			term := tsTermRe.ReplaceAllString(strings.ToLower(raw), "")
			if term != "" {
				terms = append(terms, term)
			}
		}
		return strings.Join(terms, " & "), "to_tsquery"
	}
}

// normalizeRank maps a raw ts_rank_cd value into [0, 1].
func normalizeRank(rank, multiplier float64) float64 {
	score := rank * multiplier
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
