package sqlite

// schema is executed on every Open, before migrations run; every statement
// is IF NOT EXISTS, so only missing tables, indexes and triggers are created.
// Grounded on untoldecay-BeadsLog's internal/storage/sqlite/schema.go: a
// single embedded SQL string of CREATE TABLE IF NOT EXISTS / CREATE INDEX IF
// NOT EXISTS statements, generalized from the issues/dependencies/labels
// schema to entries/links/sync_lock.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    title TEXT NOT NULL CHECK(length(title) > 0),
    content TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    declaration TEXT,
    deprecation_reason TEXT,
    flag_reason TEXT,
    scope TEXT NOT NULL,
    project TEXT,
    parent_page_id TEXT,
    source TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'active',
    inaccuracy REAL NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 1,
    synced_version INTEGER,
    synced_at DATETIME,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at DATETIME,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    content_updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (version >= 1),
    CHECK (synced_version IS NULL OR synced_version <= version),
    CHECK (inaccuracy >= 0)
);

CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(type);
CREATE INDEX IF NOT EXISTS idx_entries_scope_project ON entries(scope, project);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
CREATE INDEX IF NOT EXISTS idx_entries_inaccuracy ON entries(inaccuracy);
CREATE INDEX IF NOT EXISTS idx_entries_last_accessed ON entries(last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);

-- Links table (Decision: edges live in their own table, not inline arrays,
-- mirroring untoldecay-BeadsLog's dependencies edge-schema, generalized
-- from a closed blocks/parent-child type set to the spec's seven link
-- types).
CREATE TABLE IF NOT EXISTS links (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    link_type TEXT NOT NULL,
    description TEXT,
    source TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_id, target_id, link_type),
    CHECK (source_id != target_id OR link_type = 'conflicts_with'),
    FOREIGN KEY (source_id) REFERENCES entries(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES entries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);
CREATE INDEX IF NOT EXISTS idx_links_type ON links(link_type);

-- Full-text index kept in lock-step with entries via triggers below (I4).
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    id UNINDEXED,
    title,
    content,
    tags,
    tokenize = 'porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, id, title, content, tags)
    VALUES (new.rowid, new.id, new.title, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
    DELETE FROM entries_fts WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
    DELETE FROM entries_fts WHERE rowid = old.rowid;
    INSERT INTO entries_fts(rowid, id, title, content, tags)
    VALUES (new.rowid, new.id, new.title, new.content, new.tags);
END;

-- Embeddings blob, one row per entry, populated by the searcher when a
-- provider is configured (spec §4.3 optional semantic ranking).
CREATE TABLE IF NOT EXISTS embeddings (
    entry_id TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    vector BLOB NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
);

-- Cross-process coordinator lock (spec §4.7): a single row keyed "sync".
CREATE TABLE IF NOT EXISTS sync_lock (
    name TEXT PRIMARY KEY,
    holder_pid INTEGER NOT NULL,
    holder_host TEXT NOT NULL DEFAULT '',
    acquired_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL
);

-- Process-wide metadata (schema version markers, migration bookkeeping).
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
