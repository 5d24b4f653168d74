package sqlite

// Schema contains the DDL for the chunk index, the FTS5 mirror and the
// feedback tables. All statements are idempotent (IF NOT EXISTS) so the
// schema can be applied on every startup.
//
// The FTS5 virtual table (chunks_fts) is kept in sync with the chunks table
// via INSERT/UPDATE/DELETE triggers.
const Schema = `
CREATE TABLE IF NOT EXISTS chunks (
    document_id   TEXT NOT NULL,
    chunk_index   INTEGER NOT NULL,
    content       TEXT NOT NULL,
    document_type TEXT,
    created_at    TIMESTAMP,
    indexed_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    metadata      TEXT,
    embedding       BLOB,
    embedding_model TEXT,
    PRIMARY KEY (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_type ON chunks(document_type);
CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    content,
    content=chunks,
    content_rowid=rowid
);

CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE OF content ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TABLE IF NOT EXISTS search_feedback (
    id             TEXT PRIMARY KEY,
    document_id    TEXT NOT NULL,
    chunk_index    INTEGER NOT NULL,
    feedback_type  TEXT NOT NULL,
    reason         TEXT,
    original_score REAL NOT NULL DEFAULT 0,
    query_text     TEXT,
    session_id     TEXT,
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (document_id, chunk_index)
);
`
