// Package engine composes the retrieval pipeline: query parsing, temporal
// reasoning, hybrid keyword/vector search, feedback boosts and the final
// deterministic ranking.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/feedback"
	"github.com/medscribe/clinsearch/internal/queryparse"
	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/internal/temporal"
	"github.com/medscribe/clinsearch/pkg/types"
)

// SearchService owns one retrieval pipeline: one parser, one temporal
// reasoner, and the search/feedback collaborators injected at construction.
// There are no package-level singletons; a host application composes as many
// services as it needs.
type SearchService struct {
	parser   *queryparse.Parser
	reasoner *temporal.Reasoner
	keyword  storage.KeywordSearcher
	vector   storage.VectorSearcher
	feedback *feedback.Manager
	logger   *zap.Logger

	temporalCfg temporal.Config
	now         func() time.Time
}

// ServiceOption configures a SearchService.
type ServiceOption func(*SearchService)

// WithVectorSearcher enables the vector-similarity search leg.
func WithVectorSearcher(vector storage.VectorSearcher) ServiceOption {
	return func(s *SearchService) {
		s.vector = vector
	}
}

// WithFeedback enables feedback-derived relevance boosts.
func WithFeedback(manager *feedback.Manager) ServiceOption {
	return func(s *SearchService) {
		s.feedback = manager
	}
}

// WithLogger sets the logger (default: no-op).
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *SearchService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTemporalConfig overrides the decay model parameters.
func WithTemporalConfig(cfg temporal.Config) ServiceOption {
	return func(s *SearchService) {
		s.temporalCfg = cfg
	}
}

// WithClock pins the wall clock used by the parser and temporal reasoner.
// Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SearchService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSearchService creates a search pipeline over the given keyword searcher.
func NewSearchService(keyword storage.KeywordSearcher, opts ...ServiceOption) *SearchService {
	s := &SearchService{
		keyword:     keyword,
		logger:      zap.NewNop(),
		temporalCfg: temporal.DefaultConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = queryparse.NewParserAt(s.now)
	s.reasoner = temporal.NewReasonerAt(s.temporalCfg, s.now)
	return s
}

// SearchRequest configures one search call.
type SearchRequest struct {
	// Query is the raw query string, including any filter tokens.
	Query string

	// TopK is the maximum number of results (default 10, max 100).
	TopK int

	// FilterDocumentIDs restricts results to these documents when non-empty.
	FilterDocumentIDs []string
}

// SearchResponse is the ranked result list plus the parsed view of the query
// for callers that want to display or log the interpretation.
type SearchResponse struct {
	Results  []types.ScoredChunk
	Parsed   types.ParsedQuery
	Temporal types.TemporalQuery
}

// Search runs the full pipeline: parse the query, resolve temporal intent,
// run the keyword and vector legs, merge scores, apply feedback boosts, then
// filter to an explicit date range or apply recency decay, and sort
// deterministically (score desc, then document_id, chunk_index).
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("engine: %w: query is required", storage.ErrInvalidInput)
	}
	start := time.Now()

	topK := req.TopK
	if topK < 1 {
		topK = 10
	}
	if topK > 100 {
		topK = 100
	}

	parsed := s.parser.Parse(req.Query)
	temporalQuery := s.reasoner.ParseTemporal(parsed.Text)

	searchOpts := storage.SearchOptions{
		Query:             parsed.Text,
		ExpandedTerms:     expansionTerms(parsed),
		TopK:              topK,
		FilterDocumentIDs: req.FilterDocumentIDs,
		DocumentTypes:     setToSlice(parsed.DocumentTypes),
		ExcludeTerms:      setToSlice(parsed.ExcludeTerms),
		MinScore:          parsed.MinScore,
	}

	keywordResults, err := s.keyword.KeywordSearch(ctx, searchOpts)
	if err != nil {
		return nil, fmt.Errorf("engine: keyword search: %w", err)
	}

	var vectorResults []types.ScoredChunk
	if s.vector != nil && parsed.Text != "" {
		vectorResults, err = s.vector.VectorSearch(ctx, parsed.Text, searchOpts)
		if err != nil {
			return nil, fmt.Errorf("engine: vector search: %w", err)
		}
	}

	merged := mergeResults(keywordResults, vectorResults)

	if s.feedback != nil {
		merged = s.feedback.ApplyBoosts(ctx, merged)
	}

	// An explicit date: filter takes priority over any temporal phrase found
	// in the free text.
	if parsed.DateRange != nil {
		temporalQuery.HasTemporalReference = true
		temporalQuery.StartDate = &parsed.DateRange.Start
		temporalQuery.EndDate = &parsed.DateRange.End
		temporalQuery.DecayFactor = 0
	}
	results := s.reasoner.ProcessResults(merged, temporalQuery)
	temporal.SortByScore(results)

	if len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug("search completed",
		zap.String("query", req.Query),
		zap.String("residual_text", parsed.Text),
		zap.Bool("temporal_range", temporalQuery.HasTemporalReference),
		zap.Int("keyword_results", len(keywordResults)),
		zap.Int("vector_results", len(vectorResults)),
		zap.Int("final_results", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	return &SearchResponse{Results: results, Parsed: parsed, Temporal: temporalQuery}, nil
}

// expansionTerms derives query-expansion terms from the parsed entity filter
// values; the keyword searcher caps how many it uses.
func expansionTerms(parsed types.ParsedQuery) []string {
	var terms []string
	for _, values := range parsed.EntityFilters {
		for value := range values {
			terms = append(terms, value)
		}
	}
	sort.Strings(terms)
	return terms
}

// mergeResults joins the keyword and vector result lists on chunk identity,
// keeping the higher score when a chunk appears in both. The two legs share
// the [0, 1] score scale, so max is a fair combiner.
func mergeResults(keyword, vector []types.ScoredChunk) []types.ScoredChunk {
	merged := make([]types.ScoredChunk, 0, len(keyword)+len(vector))
	index := make(map[types.ChunkKey]int, len(keyword))

	for _, chunk := range keyword {
		index[chunk.Key()] = len(merged)
		merged = append(merged, chunk)
	}
	for _, chunk := range vector {
		if i, ok := index[chunk.Key()]; ok {
			if chunk.Score > merged[i].Score {
				merged[i].Score = chunk.Score
			}
			continue
		}
		merged = append(merged, chunk)
	}
	return merged
}

func setToSlice(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
