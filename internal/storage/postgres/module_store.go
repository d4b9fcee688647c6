package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Ensure *ModuleStore implements storage.ModuleStore at compile time.
var _ storage.ModuleStore = (*ModuleStore)(nil)

// ModuleStore implements storage.ModuleStore for one module partition.
// All queries are scoped to the store's moduleID.
type ModuleStore struct {
	db       *sql.DB
	moduleID string
}

// NewModuleStore creates a ModuleStore bound to one module partition.
func NewModuleStore(d *DB, moduleID string) *ModuleStore {
	return &ModuleStore{db: d.conn, moduleID: moduleID}
}

// Put creates or updates a memory using ON CONFLICT upsert semantics.
func (s *ModuleStore) Put(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}

	var metadataJSON []byte
	var err error
	if memory.Metadata != nil {
		metadataJSON, err = json.Marshal(memory.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal metadata: %w", err)
		}
	}

	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now()
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO module_memories (
			module_id, owner_id, id, content, metadata,
			embedding,
			access_count, last_accessed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT(module_id, owner_id, id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		s.moduleID,
		memory.OwnerID,
		memory.ID,
		memory.Content,
		nullableBytes(metadataJSON),
		nullableVector(memory.FullEmbedding),
		memory.AccessCount,
		nullableTimePtr(memory.LastAccessedAt),
		memory.CreatedAt,
		memory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to store memory: %w", err)
	}

	return nil
}

// Get retrieves a memory by owner and ID.
func (s *ModuleStore) Get(ctx context.Context, ownerID, id string) (*types.Memory, error) {
	if ownerID == "" || id == "" {
		return nil, fmt.Errorf("%w: owner ID and memory ID are required", storage.ErrInvalidInput)
	}

	query := `
		SELECT owner_id, id, content, metadata, embedding,
		       access_count, last_accessed_at, created_at, updated_at
		FROM module_memories
		WHERE module_id = $1 AND owner_id = $2 AND id = $3
	`

	row := s.db.QueryRowContext(ctx, query, s.moduleID, ownerID, id)
	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}

	return memory, nil
}

// Delete hard-deletes a memory.
func (s *ModuleStore) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" || id == "" {
		return fmt.Errorf("%w: owner ID and memory ID are required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM module_memories WHERE module_id = $1 AND owner_id = $2 AND id = $3`,
		s.moduleID, ownerID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete memory: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// SimilaritySearch ranks the owner's memories by pgvector cosine distance,
// accelerated by the ivfflat index when present. Similarity is
// 1 - cosine distance; ties break by last_accessed_at descending.
func (s *ModuleStore) SimilaritySearch(ctx context.Context, ownerID string, queryVec []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()

	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if len(queryVec) == 0 {
		return []storage.ScoredMemory{}, nil
	}

	vec := pgvector.NewVector(queryVec)

	query := `
		SELECT owner_id, id, content, metadata, embedding,
		       access_count, last_accessed_at, created_at, updated_at,
		       1 - (embedding <=> $3::vector) AS similarity
		FROM module_memories
		WHERE module_id = $1 AND owner_id = $2 AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $3::vector) >= $4
		ORDER BY embedding <=> $3::vector ASC, last_accessed_at DESC NULLS LAST
		LIMIT $5
	`

	rows, err := s.db.QueryContext(ctx, query, s.moduleID, ownerID, vec, opts.MinScore, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: similarity search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []storage.ScoredMemory{}
	for rows.Next() {
		memory, sim, err := scanScoredMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan scored memory: %w", err)
		}
		results = append(results, storage.ScoredMemory{Memory: memory, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scored memory rows: %w", err)
	}

	return results, nil
}

// TouchAccess atomically bumps access_count and last_accessed_at.
func (s *ModuleStore) TouchAccess(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE module_memories
		SET access_count = access_count + 1,
		    last_accessed_at = NOW()
		WHERE module_id = $1 AND owner_id = $2 AND id = $3`,
		s.moduleID, ownerID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to touch access: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory reads one module_memories row without a similarity column.
func scanMemory(row rowScanner) (*types.Memory, error) {
	var memory types.Memory
	var metadataJSON sql.NullString
	var embedding pgvector.Vector
	var lastAccessedAt sql.NullTime

	err := row.Scan(
		&memory.OwnerID,
		&memory.ID,
		&memory.Content,
		&metadataJSON,
		&embedding,
		&memory.AccessCount,
		&lastAccessedAt,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := applyMemoryFields(&memory, metadataJSON, embedding, lastAccessedAt); err != nil {
		return nil, err
	}
	return &memory, nil
}

// scanScoredMemory reads one module_memories row with a trailing similarity
// column.
func scanScoredMemory(rows *sql.Rows) (*types.Memory, float64, error) {
	var memory types.Memory
	var metadataJSON sql.NullString
	var embedding pgvector.Vector
	var lastAccessedAt sql.NullTime
	var similarity float64

	err := rows.Scan(
		&memory.OwnerID,
		&memory.ID,
		&memory.Content,
		&metadataJSON,
		&embedding,
		&memory.AccessCount,
		&lastAccessedAt,
		&memory.CreatedAt,
		&memory.UpdatedAt,
		&similarity,
	)
	if err != nil {
		return nil, 0, err
	}

	if err := applyMemoryFields(&memory, metadataJSON, embedding, lastAccessedAt); err != nil {
		return nil, 0, err
	}
	return &memory, similarity, nil
}

// applyMemoryFields maps nullable columns onto the memory struct.
func applyMemoryFields(memory *types.Memory, metadataJSON sql.NullString, embedding pgvector.Vector, lastAccessedAt sql.NullTime) error {
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &memory.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		memory.LastAccessedAt = &t
	}
	memory.FullEmbedding = embedding.Slice()
	return nil
}

// nullableBytes returns nil for empty byte slices so the column stores NULL.
func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// nullableTimePtr converts a *time.Time into a driver-friendly value.
func nullableTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// nullableVector returns nil for empty vectors so the column stores NULL.
func nullableVector(vec []float32) interface{} {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}
