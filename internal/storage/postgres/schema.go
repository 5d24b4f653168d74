package postgres

// Schema contains the base DDL for the chunk index and feedback tables.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS chunks (
    document_id   TEXT NOT NULL,
    chunk_index   INTEGER NOT NULL,
    content       TEXT NOT NULL,
    document_type TEXT,
    created_at    TIMESTAMPTZ,
    indexed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata      JSONB,
    embedding_model TEXT,
    PRIMARY KEY (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_type ON chunks(document_type);
CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at);

CREATE TABLE IF NOT EXISTS search_feedback (
    id             UUID PRIMARY KEY,
    document_id    TEXT NOT NULL,
    chunk_index    INTEGER NOT NULL,
    feedback_type  TEXT NOT NULL,
    reason         TEXT,
    original_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    query_text     TEXT,
    session_id     TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_search_feedback_chunk
    ON search_feedback(document_id, chunk_index);
CREATE INDEX IF NOT EXISTS idx_search_feedback_document
    ON search_feedback(document_id);

CREATE TABLE IF NOT EXISTS feedback_aggregates (
    document_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    upvotes     INTEGER NOT NULL DEFAULT 0,
    downvotes   INTEGER NOT NULL DEFAULT 0,
    flags       INTEGER NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (document_id, chunk_index)
);
`

// MigrationFTS adds full-text search support to the chunks table using
// PostgreSQL's built-in tsvector/GIN approach. A regular tsvector column
// (not GENERATED ALWAYS AS) is used for maximum compatibility across
// PostgreSQL versions. Safe to run multiple times.
const MigrationFTS = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'chunks' AND column_name = 'content_tsv'
    ) THEN
        ALTER TABLE chunks ADD COLUMN content_tsv tsvector;
    END IF;
END
$$;

UPDATE chunks SET content_tsv = to_tsvector('english', content) WHERE content_tsv IS NULL;

CREATE INDEX IF NOT EXISTS idx_chunks_content_tsv ON chunks USING GIN(content_tsv);

CREATE OR REPLACE FUNCTION chunks_tsv_update()
RETURNS TRIGGER AS $$
BEGIN
    NEW.content_tsv := to_tsvector('english', COALESCE(NEW.content, ''));
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS chunks_tsv_trigger ON chunks;
CREATE TRIGGER chunks_tsv_trigger
    BEFORE INSERT OR UPDATE OF content
    ON chunks
    FOR EACH ROW
    EXECUTE FUNCTION chunks_tsv_update();
`

// MigrationPgvector adds the embedding column and a cosine-distance index to
// the chunks table. Applied only when the vector extension is available.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'chunks' AND column_name = 'embedding'
    ) THEN
        ALTER TABLE chunks ADD COLUMN embedding vector;
    END IF;
END
$$;
`
