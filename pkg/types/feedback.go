package types

import "time"

// FeedbackType is the kind of user feedback on a search result.
type FeedbackType string

const (
	FeedbackUpvote   FeedbackType = "upvote"
	FeedbackDownvote FeedbackType = "downvote"
	FeedbackFlag     FeedbackType = "flag"
)

// Valid reports whether the feedback type is one of the known kinds.
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackUpvote, FeedbackDownvote, FeedbackFlag:
		return true
	}
	return false
}

// FeedbackRecord is one user feedback action on a result chunk. Records are
// append-only: toggling a vote writes a new record, it never rewrites an old
// one.
type FeedbackRecord struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// DocumentID and ChunkIndex identify the chunk the feedback applies to.
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`

	// Type is the feedback kind.
	Type FeedbackType `json:"feedback_type"`

	// Reason is an optional free-text explanation (mostly used with flags).
	Reason string `json:"reason,omitempty"`

	// OriginalScore is the score the chunk had when the user reacted.
	OriginalScore float64 `json:"original_score"`

	// QueryText is the query that produced the result.
	QueryText string `json:"query_text,omitempty"`

	// SessionID groups feedback from one user session.
	SessionID string `json:"session_id,omitempty"`

	// CreatedAt is when the feedback was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// RelevanceBoost is the bounded additive score adjustment derived from a
// chunk's aggregated feedback. Cached by the feedback manager and invalidated
// on every write affecting the chunk.
type RelevanceBoost struct {
	// DocumentID and ChunkIndex identify the chunk.
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`

	// BoostFactor is the adjustment in [-MaxBoost, +MaxBoost].
	BoostFactor float64 `json:"boost_factor"`

	// Confidence in [0, 1] grows with vote volume and reaches 1.0 at the
	// minimum-feedback threshold.
	Confidence float64 `json:"confidence"`

	// Vote tallies backing the boost.
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Flags     int `json:"flags"`
}
