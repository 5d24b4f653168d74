// Package types defines the shared data model for the clinsearch retrieval
// library: document chunks, parsed queries, entity clusters, classification
// results, and feedback records.
package types

import "time"

// DocumentChunk is the unit of indexing and scoring: a paragraph or section
// of a source document stored in the chunk index.
type DocumentChunk struct {
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`

	// ChunkIndex is the position of this chunk within the document.
	// (DocumentID, ChunkIndex) is the chunk's identity across all stages.
	ChunkIndex int `json:"chunk_index"`

	// Text is the chunk content.
	Text string `json:"text"`

	// DocumentType is the source document category (pdf, docx, txt, image).
	DocumentType string `json:"document_type,omitempty"`

	// CreatedAt is when the source content was created. Used by temporal
	// filtering and decay. May be zero when the source carries no timestamp.
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Metadata carries free-form chunk attributes (section title, page, ...).
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ScoredChunk is a chunk with a relevance score attached. Every ranking stage
// (keyword search, vector search, feedback boost, temporal decay) consumes
// and produces ScoredChunk values; stages copy rather than share slices so
// they stay composable and testable.
type ScoredChunk struct {
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`

	// ChunkIndex is the position of this chunk within the document.
	ChunkIndex int `json:"chunk_index"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Score is the relevance score in [0, 1] after the latest stage.
	Score float64 `json:"score"`

	// CreatedAt is the source content timestamp (zero when unknown).
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Metadata carries chunk attributes from the store.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Key returns the join key used to match this chunk across keyword search,
// vector search, and feedback lookups.
func (c *ScoredChunk) Key() ChunkKey {
	return ChunkKey{DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex}
}

// ChunkKey is the identity of a chunk: (document_id, chunk_index).
type ChunkKey struct {
	DocumentID string
	ChunkIndex int
}
