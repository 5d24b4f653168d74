// Package temporal detects time references in queries and applies either a
// hard date-range filter or a soft relevance decay to search results.
//
// The two behaviors are mutually exclusive: an explicit time window filters
// results without touching their scores, while the absence of any temporal
// reference applies an exponential half-life decay to every score.
package temporal

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/medscribe/clinsearch/pkg/types"
)

// Default decay model parameters. A zero-age item is never boosted above the
// ceiling and no item decays below the floor, so recency can reorder
// near-ties without burying strong old matches.
const (
	DefaultHalfLifeDays = 180.0
	DefaultDecayFloor   = 0.5
	DefaultDecayCeiling = 0.95
)

// bareYearRe matches a four-digit year in the 2000s anywhere in the query.
// A bare year takes precedence over keyword matches.
var bareYearRe = regexp.MustCompile(`\b(20\d{2})\b`)

// keywordWindow maps a temporal phrase to a fixed look-back window from now.
type keywordWindow struct {
	phrase string
	delta  time.Duration
}

// temporalKeywords is scanned in order; all matching phrases are recorded and
// the one yielding the earliest start wins as the effective window start.
var temporalKeywords = []keywordWindow{
	{"last year", 365 * 24 * time.Hour},
	{"past year", 365 * 24 * time.Hour},
	{"last month", 30 * 24 * time.Hour},
	{"past month", 30 * 24 * time.Hour},
	{"last week", 7 * 24 * time.Hour},
	{"past week", 7 * 24 * time.Hour},
	{"yesterday", 2 * 24 * time.Hour},
	{"today", 24 * time.Hour},
	{"recently", 30 * 24 * time.Hour},
	{"recent", 30 * 24 * time.Hour},
	{"latest", 30 * 24 * time.Hour},
	{"newest", 30 * 24 * time.Hour},
}

// Config tunes the decay model.
type Config struct {
	// HalfLifeDays is the age at which decay reaches half relevance.
	HalfLifeDays float64

	// Floor and Ceiling clamp the decay factor.
	Floor   float64
	Ceiling float64
}

// DefaultConfig returns the default decay model parameters.
func DefaultConfig() Config {
	return Config{
		HalfLifeDays: DefaultHalfLifeDays,
		Floor:        DefaultDecayFloor,
		Ceiling:      DefaultDecayCeiling,
	}
}

// Reasoner resolves temporal references and applies the decay model.
type Reasoner struct {
	cfg Config
	now func() time.Time
}

// NewReasoner returns a Reasoner with the given config and the system clock.
// Zero or negative config values fall back to the defaults.
func NewReasoner(cfg Config) *Reasoner {
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = DefaultHalfLifeDays
	}
	if cfg.Floor <= 0 {
		cfg.Floor = DefaultDecayFloor
	}
	if cfg.Ceiling <= 0 || cfg.Ceiling > 1 {
		cfg.Ceiling = DefaultDecayCeiling
	}
	return &Reasoner{cfg: cfg, now: time.Now}
}

// NewReasonerAt returns a Reasoner with an injected clock for tests.
func NewReasonerAt(cfg Config, now func() time.Time) *Reasoner {
	r := NewReasoner(cfg)
	if now != nil {
		r.now = now
	}
	return r
}

// ParseTemporal scans the query for time references.
//
// A bare four-digit year produces a full-year window and disables decay.
// Otherwise every matching keyword phrase is recorded and the earliest
// resulting start date wins; the window end is always now. With no match the
// result carries DecayFactor=1.0, instructing callers to apply the full
// decay model.
func (r *Reasoner) ParseTemporal(queryText string) types.TemporalQuery {
	now := r.now()
	lower := strings.ToLower(queryText)

	if m := bareYearRe.FindStringSubmatch(lower); m != nil {
		year, _ := strconv.Atoi(m[1])
		start := time.Date(year, 1, 1, 0, 0, 0, 0, now.Location())
		end := time.Date(year, 12, 31, 23, 59, 59, 0, now.Location())
		return types.TemporalQuery{
			HasTemporalReference: true,
			TimeFrame:            m[1],
			StartDate:            &start,
			EndDate:              &end,
			MatchedKeywords:      []string{m[1]},
			DecayFactor:          0,
		}
	}

	var (
		matched   []string
		earliest  time.Time
		timeFrame string
	)

	// "this year" / "this month" anchor to calendar boundaries rather than a
	// fixed delta.
	if strings.Contains(lower, "this year") {
		matched = append(matched, "this year")
		earliest = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		timeFrame = "this year"
	}
	if strings.Contains(lower, "this month") {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		matched = append(matched, "this month")
		if earliest.IsZero() || start.Before(earliest) {
			earliest = start
			timeFrame = "this month"
		}
	}

	for _, kw := range temporalKeywords {
		if !strings.Contains(lower, kw.phrase) {
			continue
		}
		matched = append(matched, kw.phrase)
		start := now.Add(-kw.delta)
		if earliest.IsZero() || start.Before(earliest) {
			earliest = start
			timeFrame = kw.phrase
		}
	}

	if len(matched) == 0 {
		return types.TemporalQuery{DecayFactor: 1.0}
	}

	end := now
	return types.TemporalQuery{
		HasTemporalReference: true,
		TimeFrame:            timeFrame,
		StartDate:            &earliest,
		EndDate:              &end,
		MatchedKeywords:      matched,
		DecayFactor:          0,
	}
}

// CalculateDecay returns the exponential half-life decay factor for content
// created at createdAt, evaluated at referenceTime. Negative or zero age
// returns the ceiling.
func (r *Reasoner) CalculateDecay(createdAt, referenceTime time.Time) float64 {
	ageDays := referenceTime.Sub(createdAt).Hours() / 24.0
	if ageDays <= 0 {
		return r.cfg.Ceiling
	}

	decay := math.Pow(2, -ageDays/r.cfg.HalfLifeDays)
	if decay > r.cfg.Ceiling {
		return r.cfg.Ceiling
	}
	if decay < r.cfg.Floor {
		return r.cfg.Floor
	}
	return decay
}

// ProcessResults applies the temporal verdict to a result list and returns a
// new slice; the input is not mutated.
//
// With an explicit window the results are filtered to the inclusive range.
// Items lacking a timestamp are kept: the permissive default favors recall
// over precision for legacy content with no creation date.
//
// Without an explicit window every score is multiplied by its decay factor
// and the list is re-sorted by adjusted score descending, ties broken by
// (document_id, chunk_index) for reproducibility.
func (r *Reasoner) ProcessResults(results []types.ScoredChunk, tq types.TemporalQuery) []types.ScoredChunk {
	if rng := tq.Range(); rng != nil {
		filtered := make([]types.ScoredChunk, 0, len(results))
		for _, res := range results {
			if res.CreatedAt.IsZero() || rng.Contains(res.CreatedAt) {
				filtered = append(filtered, res)
			}
		}
		return filtered
	}

	now := r.now()
	adjusted := make([]types.ScoredChunk, len(results))
	copy(adjusted, results)
	for i := range adjusted {
		if adjusted[i].CreatedAt.IsZero() {
			continue
		}
		adjusted[i].Score *= r.CalculateDecay(adjusted[i].CreatedAt, now)
	}

	SortByScore(adjusted)
	return adjusted
}

// SortByScore orders chunks by score descending with a deterministic
// (document_id, chunk_index) tie-break.
func SortByScore(chunks []types.ScoredChunk) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
}
