package sqlite

const schema = `
-- Entries table
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL CHECK(length(topic) <= 1000),
    content TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    source TEXT,
    actor TEXT,
    confidence REAL CHECK(confidence IS NULL OR (confidence >= 0 AND confidence <= 1)),
    valid_from TEXT,
    valid_to TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    canonical_entity_id TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_entries_topic ON entries(topic);
CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);
CREATE INDEX IF NOT EXISTS idx_entries_deleted_at ON entries(deleted_at);
CREATE INDEX IF NOT EXISTS idx_entries_canonical ON entries(canonical_entity_id);

-- Triples table
CREATE TABLE IF NOT EXISTS triples (
    id TEXT PRIMARY KEY,
    subject TEXT NOT NULL CHECK(length(subject) <= 2000),
    predicate TEXT NOT NULL CHECK(length(predicate) <= 2000),
    object TEXT NOT NULL CHECK(length(object) <= 2000),
    source TEXT,
    actor TEXT,
    confidence REAL CHECK(confidence IS NULL OR (confidence >= 0 AND confidence <= 1)),
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(subject);
CREATE INDEX IF NOT EXISTS idx_triples_predicate ON triples(predicate);
CREATE INDEX IF NOT EXISTS idx_triples_object ON triples(object);
CREATE INDEX IF NOT EXISTS idx_triples_subject_predicate ON triples(subject, predicate);

-- Canonical entities table
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

-- Aliases table (normalized lowercase alias -> canonical entity)
CREATE TABLE IF NOT EXISTS aliases (
    id TEXT PRIMARY KEY,
    alias TEXT NOT NULL,
    canonical_entity_id TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aliases_alias ON aliases(alias);
CREATE INDEX IF NOT EXISTS idx_aliases_entity ON aliases(canonical_entity_id);

-- Transaction log (append-only; only reverted_by is ever stamped)
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    op TEXT NOT NULL CHECK(op IN ('CREATE','UPDATE','DELETE','MERGE','REVERT')),
    entity_type TEXT NOT NULL CHECK(entity_type IN ('entry','triple','entity','alias')),
    entity_id TEXT NOT NULL,
    before_snapshot TEXT,
    after_snapshot TEXT,
    reverted_by TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_entity ON transactions(entity_type, entity_id);

-- Ingestion tasks
CREATE TABLE IF NOT EXISTS ingestion_tasks (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','processing','completed','failed')),
    input_uri TEXT NOT NULL,
    total_items INTEGER NOT NULL DEFAULT 0,
    processed_items INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON ingestion_tasks(status);

-- Session conflict cache (1h TTL enforced on read)
CREATE TABLE IF NOT EXISTS conflict_cache (
    id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    stored_at TEXT NOT NULL
);
`

// ftsSchema is applied only when the engine supports FTS5. The triggers
// keep entries_fts synchronized with the entries table; soft deletes go
// through UPDATE so the update trigger covers them.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    topic, content, tags,
    content='entries',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS entries_fts_insert AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, topic, content, tags)
    VALUES (new.rowid, new.topic, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS entries_fts_delete AFTER DELETE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, topic, content, tags)
    VALUES ('delete', old.rowid, old.topic, old.content, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS entries_fts_update AFTER UPDATE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, topic, content, tags)
    VALUES ('delete', old.rowid, old.topic, old.content, old.tags);
    INSERT INTO entries_fts(rowid, topic, content, tags)
    VALUES (new.rowid, new.topic, new.content, new.tags);
END;
`
