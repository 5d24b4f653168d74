package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/medscribe/clinsearch/internal/storage"
)

var _ storage.ChunkEmbeddingStore = (*Store)(nil)

// StoreChunkEmbedding stores or replaces the embedding vector for a chunk.
// The chunk row must already exist. Vectors are serialized as little-endian
// float32 into the embedding BLOB column.
func (s *Store) StoreChunkEmbedding(ctx context.Context, documentID string, chunkIndex int, embedding []float32, model string) error {
	if documentID == "" {
		return fmt.Errorf("sqlite: %w: document_id is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("sqlite: %w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	const query = `
		UPDATE chunks
		SET embedding = ?, embedding_model = NULLIF(?, '')
		WHERE document_id = ? AND chunk_index = ?
	`
	result, err := s.db.ExecContext(ctx, query, serializeEmbedding(embedding), model, documentID, chunkIndex)
	if err != nil {
		return fmt.Errorf("sqlite: store embedding %s/%d: %w", documentID, chunkIndex, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: store embedding rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// serializeEmbedding converts a float32 slice to little-endian binary.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding converts a little-endian binary blob back to a
// float32 slice.
func deserializeEmbedding(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("sqlite: embedding blob size %d is not a multiple of 4", len(buf))
	}
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clampScore bounds a similarity value into [0, 1].
func clampScore(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
