// Package storage provides composable storage interfaces for the clinsearch
// retrieval pipeline: the chunk index, keyword and vector search providers,
// and the feedback log.
//
// The layer is split into small, focused interfaces so backends (PostgreSQL,
// SQLite) can implement them independently and callers can depend on exactly
// the capability they need.
package storage

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// SearchMode selects how the keyword query expression is built.
type SearchMode string

const (
	// ModePlain ANDs the query terms and expansion terms together.
	ModePlain SearchMode = "plain"

	// ModeNatural supports AND/OR/exclusion syntax in the query itself and
	// ORs quoted expansion phrases alongside it.
	ModeNatural SearchMode = "natural"
)

// maxExpansionTerms caps how many expansion terms participate in the keyword
// query expression.
const maxExpansionTerms = 5

// SearchOptions configures a keyword or vector search call.
type SearchOptions struct {
	// Query is the primary query text.
	Query string

	// ExpandedTerms are additional terms to broaden the match. At most five
	// are used; the rest are ignored.
	ExpandedTerms []string

	// TopK is the maximum number of results (default 10, max 100).
	TopK int

	// Mode selects the query-building strategy (default ModePlain).
	Mode SearchMode

	// FilterDocumentIDs restricts results to these documents when non-empty.
	FilterDocumentIDs []string

	// DocumentTypes restricts results to these document categories when
	// non-empty.
	DocumentTypes []string

	// ExcludeTerms removes results whose text contains any of these words.
	ExcludeTerms []string

	// MinScore drops results scoring below this normalized value.
	MinScore float64
}

// Normalize applies defaults and caps to the options.
func (o *SearchOptions) Normalize() {
	o.Query = strings.TrimSpace(o.Query)

	if o.TopK < 1 {
		o.TopK = 10
	}
	if o.TopK > 100 {
		o.TopK = 100
	}

	if o.Mode != ModeNatural {
		o.Mode = ModePlain
	}

	if len(o.ExpandedTerms) > maxExpansionTerms {
		o.ExpandedTerms = o.ExpandedTerms[:maxExpansionTerms]
	}

	if o.MinScore < 0 {
		o.MinScore = 0
	}
	if o.MinScore > 1 {
		o.MinScore = 1
	}
}

// FeedbackAggregate is the per-chunk vote tally maintained alongside the
// append-only feedback log.
type FeedbackAggregate struct {
	DocumentID string
	ChunkIndex int
	Upvotes    int
	Downvotes  int
	Flags      int
}

// TotalVotes returns the up+down vote count (flags are not votes).
func (a FeedbackAggregate) TotalVotes() int {
	return a.Upvotes + a.Downvotes
}
