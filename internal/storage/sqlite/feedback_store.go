package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

var _ storage.FeedbackStore = (*Store)(nil)

// InsertFeedback appends a feedback record to the log and updates the chunk's
// aggregate tally in the same transaction, so a read of the aggregate after a
// successful insert always reflects the new vote.
func (s *Store) InsertFeedback(ctx context.Context, record *types.FeedbackRecord) error {
	if record == nil || record.DocumentID == "" {
		return fmt.Errorf("sqlite: %w: feedback requires a document_id", storage.ErrInvalidInput)
	}
	if !record.Type.Valid() {
		return fmt.Errorf("sqlite: %w: unknown feedback type %q", storage.ErrInvalidInput, record.Type)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin feedback transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertSQL = `
		INSERT INTO search_feedback (id, document_id, chunk_index, feedback_type, reason, original_score, query_text, session_id)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''))
	`
	if _, err := tx.ExecContext(ctx, insertSQL,
		record.ID, record.DocumentID, record.ChunkIndex, string(record.Type),
		record.Reason, record.OriginalScore, record.QueryText, record.SessionID,
	); err != nil {
		return fmt.Errorf("sqlite: insert feedback: %w", err)
	}

	const upsertSQL = `
		INSERT INTO feedback_aggregates (document_id, chunk_index, upvotes, downvotes, flags)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET
			upvotes = upvotes + excluded.upvotes,
			downvotes = downvotes + excluded.downvotes,
			flags = flags + excluded.flags,
			updated_at = CURRENT_TIMESTAMP
	`
	up, down, flags := voteDeltas(record.Type)
	if _, err := tx.ExecContext(ctx, upsertSQL, record.DocumentID, record.ChunkIndex, up, down, flags); err != nil {
		return fmt.Errorf("sqlite: upsert feedback aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit feedback transaction: %w", err)
	}
	return nil
}

// GetAggregate returns the vote tally for one chunk. A chunk with no feedback
// yields a zero-valued aggregate, not an error.
func (s *Store) GetAggregate(ctx context.Context, documentID string, chunkIndex int) (storage.FeedbackAggregate, error) {
	agg := storage.FeedbackAggregate{DocumentID: documentID, ChunkIndex: chunkIndex}

	const query = `
		SELECT upvotes, downvotes, flags
		FROM feedback_aggregates
		WHERE document_id = ? AND chunk_index = ?
	`
	err := s.db.QueryRowContext(ctx, query, documentID, chunkIndex).Scan(&agg.Upvotes, &agg.Downvotes, &agg.Flags)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return agg, fmt.Errorf("sqlite: get feedback aggregate %s/%d: %w", documentID, chunkIndex, err)
	}
	return agg, nil
}

// GetDocumentAggregates returns the tallies for every chunk of a document that
// has received feedback.
func (s *Store) GetDocumentAggregates(ctx context.Context, documentID string) ([]storage.FeedbackAggregate, error) {
	const query = `
		SELECT document_id, chunk_index, upvotes, downvotes, flags
		FROM feedback_aggregates
		WHERE document_id = ?
		ORDER BY chunk_index
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get document aggregates %s: %w", documentID, err)
	}
	defer func() { _ = rows.Close() }()

	var aggregates []storage.FeedbackAggregate
	for rows.Next() {
		var agg storage.FeedbackAggregate
		if err := rows.Scan(&agg.DocumentID, &agg.ChunkIndex, &agg.Upvotes, &agg.Downvotes, &agg.Flags); err != nil {
			return nil, fmt.Errorf("sqlite: scan feedback aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate feedback aggregates: %w", err)
	}
	return aggregates, nil
}

// voteDeltas maps a feedback type to the aggregate columns it increments.
func voteDeltas(t types.FeedbackType) (upvotes, downvotes, flags int) {
	switch t {
	case types.FeedbackUpvote:
		return 1, 0, 0
	case types.FeedbackDownvote:
		return 0, 1, 0
	case types.FeedbackFlag:
		return 0, 0, 1
	}
	return 0, 0, 0
}
