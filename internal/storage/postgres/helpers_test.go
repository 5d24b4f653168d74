// Package postgres provides the PostgreSQL implementation of the storage
// interfaces. This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the chunk and feedback tables. It is
// intended for use in tests only; defined in the postgres package so it has
// access to the unexported db field.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"TRUNCATE TABLE chunks, search_feedback, feedback_aggregates RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
