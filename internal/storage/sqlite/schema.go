package sqlite

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent (IF NOT EXISTS) so Open can be called
// against an existing database.
const Schema = `
-- Module partitions: each module's memories, keyed by (module, owner, id).
-- IDs are unique only within a partition; cross-module uniqueness is never
-- assumed anywhere in the system.
CREATE TABLE IF NOT EXISTS module_memories (
    module_id TEXT NOT NULL,
    owner_id  TEXT NOT NULL,
    id        TEXT NOT NULL,
    content   TEXT NOT NULL,

    -- Open metadata document (JSON); interpreted only by the owning module.
    metadata TEXT,

    -- Full-dimensional embedding, packed little-endian float32.
    embedding BLOB,
    dimension INTEGER NOT NULL DEFAULT 0,

    -- Quality signals
    access_count     INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (module_id, owner_id, id)
);

CREATE INDEX IF NOT EXISTS idx_module_memories_owner ON module_memories(module_id, owner_id);
CREATE INDEX IF NOT EXISTS idx_module_memories_accessed ON module_memories(last_accessed_at);

-- Central index: one compact routing entry per memory across all modules.
-- A derived cache of the partitions, unique per (module_id, remote_memory_id).
CREATE TABLE IF NOT EXISTS central_index (
    id               TEXT PRIMARY KEY,
    owner_id         TEXT NOT NULL,
    module_id        TEXT NOT NULL,
    remote_memory_id TEXT NOT NULL,

    -- Reduced-dimension embedding, packed little-endian float32.
    index_embedding BLOB,
    dimension       INTEGER NOT NULL DEFAULT 0,

    title      TEXT,
    summary    TEXT,
    keywords   TEXT, -- JSON array
    categories TEXT, -- JSON array

    importance_score REAL    NOT NULL DEFAULT 0.5,
    access_count     INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    UNIQUE (module_id, remote_memory_id)
);

CREATE INDEX IF NOT EXISTS idx_central_index_owner ON central_index(owner_id);
CREATE INDEX IF NOT EXISTS idx_central_index_module ON central_index(module_id);

-- Relationships: directed, typed, weighted edges between memories.
-- Unique per 5-tuple so concurrent writers converge instead of duplicating.
CREATE TABLE IF NOT EXISTS relationships (
    id       TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,

    source_module    TEXT NOT NULL,
    source_memory_id TEXT NOT NULL,
    target_module    TEXT NOT NULL,
    target_memory_id TEXT NOT NULL,

    type     TEXT NOT NULL,
    strength REAL NOT NULL DEFAULT 1.0,
    metadata TEXT, -- JSON object

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    UNIQUE (source_module, source_memory_id, target_module, target_memory_id, type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_module, source_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_module, target_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_owner ON relationships(owner_id);
`
