package postgres

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent (IF NOT EXISTS) so Open can be called
// against an existing database.
const Schema = `
-- Module partitions: each module's memories, keyed by (module, owner, id).
CREATE TABLE IF NOT EXISTS module_memories (
    module_id TEXT NOT NULL,
    owner_id  TEXT NOT NULL,
    id        TEXT NOT NULL,
    content   TEXT NOT NULL,

    -- Open metadata document; interpreted only by the owning module.
    metadata JSONB,

    -- Full-dimensional embedding for within-module similarity search.
    embedding vector,

    access_count     INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (module_id, owner_id, id)
);

CREATE INDEX IF NOT EXISTS idx_module_memories_owner ON module_memories(module_id, owner_id);

-- Central index: one compact routing entry per memory across all modules.
CREATE TABLE IF NOT EXISTS central_index (
    id               TEXT PRIMARY KEY,
    owner_id         TEXT NOT NULL,
    module_id        TEXT NOT NULL,
    remote_memory_id TEXT NOT NULL,

    -- Reduced-dimension embedding for cross-module shortlisting.
    index_embedding vector,

    title      TEXT,
    summary    TEXT,
    keywords   JSONB,
    categories JSONB,

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
CREATE TABLE IF NOT EXISTS relationships (
    id       TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,

    source_module    TEXT NOT NULL,
    source_memory_id TEXT NOT NULL,
    target_module    TEXT NOT NULL,
    target_memory_id TEXT NOT NULL,

    type     TEXT NOT NULL,
    strength REAL NOT NULL DEFAULT 1.0,
    metadata JSONB,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    UNIQUE (source_module, source_memory_id, target_module, target_memory_id, type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_module, source_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_module, target_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_owner ON relationships(owner_id);
`

// MigrationANNIndexes creates the ivfflat indexes for approximate
// nearest-neighbor search. ivfflat requires at least one row to build
// meaningful lists, so each index is guarded by an existence check.
// Lists = 100 is a good default for up to ~1M vectors.
// Safe to run multiple times.
const MigrationANNIndexes = `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_module_memories_embedding_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM module_memories WHERE embedding IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_module_memories_embedding_cosine ON module_memories USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_central_index_embedding_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM central_index WHERE index_embedding IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_central_index_embedding_cosine ON central_index USING ivfflat (index_embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
