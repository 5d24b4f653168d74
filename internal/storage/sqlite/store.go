// Package sqlite provides the SQLite implementation of the clinsearch
// storage interfaces: chunk index, FTS5 keyword search, in-process vector
// similarity, and the feedback log. It is the embedded, zero-infrastructure
// backend; deployments with larger corpora should use the postgres package.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/pkg/types"
)

// Store implements storage.ChunkStore, storage.KeywordSearcher,
// storage.VectorSearcher, storage.ChunkEmbeddingStore and
// storage.FeedbackStore on SQLite.
type Store struct {
	db       *sql.DB
	logger   *zap.Logger
	embedder Embedder
}

// Embedder produces a vector representation of a piece of text, used to embed
// query text for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder attaches the embedder used to vectorize query text. Without
// one, VectorSearch degrades to empty results.
func WithEmbedder(e Embedder) Option {
	return func(s *Store) {
		s.embedder = e
	}
}

// NewStore opens a SQLite database, configures WAL mode, and applies the
// schema. The dsn is a file path or ":memory:".
func NewStore(dsn string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets concurrent readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying database handle for auxiliary operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.ChunkStore = (*Store)(nil)

// StoreChunk upserts a chunk keyed by (document_id, chunk_index).
func (s *Store) StoreChunk(ctx context.Context, chunk *types.DocumentChunk) error {
	if chunk == nil || chunk.DocumentID == "" {
		return fmt.Errorf("sqlite: %w: chunk requires a document_id", storage.ErrInvalidInput)
	}

	var metadataJSON any
	if chunk.Metadata != nil {
		b, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: marshal chunk metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	var createdAt any
	if !chunk.CreatedAt.IsZero() {
		createdAt = chunk.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	const query = `
		INSERT INTO chunks (document_id, chunk_index, content, document_type, created_at, metadata)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET
			content = excluded.content,
			document_type = excluded.document_type,
			created_at = excluded.created_at,
			metadata = excluded.metadata,
			indexed_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		chunk.DocumentID, chunk.ChunkIndex, chunk.Text, chunk.DocumentType, createdAt, metadataJSON,
	); err != nil {
		return fmt.Errorf("sqlite: store chunk %s/%d: %w", chunk.DocumentID, chunk.ChunkIndex, err)
	}
	return nil
}

// GetChunk retrieves one chunk by identity.
func (s *Store) GetChunk(ctx context.Context, documentID string, chunkIndex int) (*types.DocumentChunk, error) {
	const query = `
		SELECT document_id, chunk_index, content, document_type, created_at, metadata
		FROM chunks
		WHERE document_id = ? AND chunk_index = ?
	`

	var (
		chunk        types.DocumentChunk
		documentType sql.NullString
		createdAt    sql.NullString
		metadataJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, documentID, chunkIndex).Scan(
		&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Text, &documentType, &createdAt, &metadataJSON,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get chunk %s/%d: %w", documentID, chunkIndex, err)
	}

	if documentType.Valid {
		chunk.DocumentType = documentType.String
	}
	chunk.CreatedAt = parseStoredTime(createdAt)
	chunk.Metadata = s.decodeMetadata(metadataJSON)
	return &chunk, nil
}

// DeleteDocument removes every chunk of a document and returns the count.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete document %s: %w", documentID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete document rows affected: %w", err)
	}
	return int(n), nil
}

// decodeMetadata unmarshals a metadata JSON column. Malformed JSON is kept
// under a "raw" key rather than failing the row.
func (s *Store) decodeMetadata(col sql.NullString) map[string]interface{} {
	if !col.Valid || col.String == "" {
		return nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(col.String), &metadata); err != nil {
		s.logger.Debug("malformed chunk metadata kept as raw string", zap.Error(err))
		return map[string]interface{}{"raw": col.String}
	}
	return metadata
}

// parseStoredTime decodes a created_at column. Timestamps are written as
// RFC 3339 strings, but rows imported from other tools may use the SQLite
// datetime format.
func parseStoredTime(col sql.NullString) time.Time {
	if !col.Valid || col.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, col.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
