package types

import "time"

// DateRange is an inclusive [Start, End] timestamp window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the inclusive range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ParsedQuery is the structured form of a raw query string. It is produced
// once by the query parser and consumed read-only by downstream searchers.
type ParsedQuery struct {
	// Text is the residual free text after all filter tokens are stripped,
	// with whitespace collapsed.
	Text string `json:"text"`

	// DocumentTypes restricts results to these document categories.
	// png/jpg/jpeg normalize to "image".
	DocumentTypes map[string]bool `json:"document_types,omitempty"`

	// DateRange restricts results to an inclusive timestamp window.
	// Nil when the query carried no (parseable) date token.
	DateRange *DateRange `json:"date_range,omitempty"`

	// EntityFilters maps a normalized entity category to the set of values
	// requested for it. Repeated entity: tokens union their value sets.
	EntityFilters map[string]map[string]bool `json:"entity_filters,omitempty"`

	// ExcludeTerms are words the results must not contain.
	ExcludeTerms map[string]bool `json:"exclude_terms,omitempty"`

	// ExactPhrases are quoted phrases that must match verbatim. The unquoted
	// phrase text also remains in Text so it participates in keyword matching.
	ExactPhrases []string `json:"exact_phrases,omitempty"`

	// MinScore is the minimum relevance score filter in [0, 1].
	MinScore float64 `json:"min_score"`
}

// HasFilters reports whether any structured filter was extracted.
func (q *ParsedQuery) HasFilters() bool {
	return len(q.DocumentTypes) > 0 ||
		q.DateRange != nil ||
		len(q.EntityFilters) > 0 ||
		len(q.ExcludeTerms) > 0 ||
		len(q.ExactPhrases) > 0 ||
		q.MinScore > 0
}

// TemporalQuery is the temporal reasoner's reading of a query: either an
// explicit time window (decay disabled) or a soft-decay instruction.
type TemporalQuery struct {
	// HasTemporalReference is true when the query mentioned a recognizable
	// time expression.
	HasTemporalReference bool `json:"has_temporal_reference"`

	// TimeFrame names the matched expression (e.g. "last week", "2023").
	TimeFrame string `json:"time_frame,omitempty"`

	// StartDate and EndDate bound the resolved window. Nil when no explicit
	// window was resolved.
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	// MatchedKeywords lists every temporal keyword found in the query.
	MatchedKeywords []string `json:"matched_keywords,omitempty"`

	// DecayFactor is 0 when an explicit window was given (filter, don't
	// decay) and 1.0 when no reference was found (apply the full decay
	// model).
	DecayFactor float64 `json:"decay_factor"`
}

// Range returns the resolved window as a DateRange, or nil when the query
// carried no explicit window.
func (t *TemporalQuery) Range() *DateRange {
	if t.StartDate == nil || t.EndDate == nil {
		return nil
	}
	return &DateRange{Start: *t.StartDate, End: *t.EndDate}
}
