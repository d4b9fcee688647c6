package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// similaritySearchMaxCandidates caps the number of embeddings loaded into
// memory during a similarity search. Candidates are selected newest first so
// recently-stored memories are always considered. Typical personal
// partitions (< 10k memories) never hit this limit.
const similaritySearchMaxCandidates = 10_000

// Ensure *ModuleStore implements storage.ModuleStore at compile time.
var _ storage.ModuleStore = (*ModuleStore)(nil)

// ModuleStore implements storage.ModuleStore for one module partition.
// All queries are scoped to the store's moduleID; a module can never see
// another module's rows through this type.
type ModuleStore struct {
	db       *sql.DB
	moduleID string
}

// NewModuleStore creates a ModuleStore bound to one module partition.
func NewModuleStore(d *DB, moduleID string) *ModuleStore {
	return &ModuleStore{db: d.conn, moduleID: moduleID}
}

// Put creates or updates a memory using upsert semantics.
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
			return fmt.Errorf("sqlite: failed to marshal metadata: %w", err)
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
			embedding, dimension,
			access_count, last_accessed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(module_id, owner_id, id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		s.moduleID,
		memory.OwnerID,
		memory.ID,
		memory.Content,
		nullableBytes(metadataJSON),
		nullableBytes(serializeVector(memory.FullEmbedding)),
		len(memory.FullEmbedding),
		memory.AccessCount,
		nullableTimePtr(memory.LastAccessedAt),
		memory.CreatedAt,
		memory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store memory: %w", err)
	}

	return nil
}

// Get retrieves a memory by owner and ID.
func (s *ModuleStore) Get(ctx context.Context, ownerID, id string) (*types.Memory, error) {
	if ownerID == "" || id == "" {
		return nil, fmt.Errorf("%w: owner ID and memory ID are required", storage.ErrInvalidInput)
	}

	query := `
		SELECT owner_id, id, content, metadata, embedding, dimension,
		       access_count, last_accessed_at, created_at, updated_at
		FROM module_memories
		WHERE module_id = ? AND owner_id = ? AND id = ?
	`

	row := s.db.QueryRowContext(ctx, query, s.moduleID, ownerID, id)
	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}

	return memory, nil
}

// Delete hard-deletes a memory.
func (s *ModuleStore) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" || id == "" {
		return fmt.Errorf("%w: owner ID and memory ID are required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM module_memories WHERE module_id = ? AND owner_id = ? AND id = ?`,
		s.moduleID, ownerID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// SimilaritySearch ranks the owner's memories by cosine similarity of the
// full embedding. Embeddings are loaded into Go memory and scored there; the
// candidate pool is capped at similaritySearchMaxCandidates, newest first.
func (s *ModuleStore) SimilaritySearch(ctx context.Context, ownerID string, queryVec []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()

	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if len(queryVec) == 0 {
		return []storage.ScoredMemory{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, id, content, metadata, embedding, dimension,
		       access_count, last_accessed_at, created_at, updated_at
		FROM module_memories
		WHERE module_id = ? AND owner_id = ? AND embedding IS NOT NULL
		ORDER BY created_at DESC
		LIMIT ?`, s.moduleID, ownerID, similaritySearchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []storage.ScoredMemory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan candidate: %w", err)
		}
		sim := cosineSimilarity(queryVec, memory.FullEmbedding)
		if sim < opts.MinScore {
			continue
		}
		results = append(results, storage.ScoredMemory{Memory: memory, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: candidate rows: %w", err)
	}

	// Similarity descending; ties break by last_accessed_at descending so
	// recently-used memories win.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return laterAccess(results[i].Memory.LastAccessedAt, results[j].Memory.LastAccessedAt)
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	if results == nil {
		results = []storage.ScoredMemory{}
	}

	return results, nil
}

// TouchAccess atomically bumps access_count and last_accessed_at.
func (s *ModuleStore) TouchAccess(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE module_memories
		SET access_count = access_count + 1,
		    last_accessed_at = CURRENT_TIMESTAMP
		WHERE module_id = ? AND owner_id = ? AND id = ?`,
		s.moduleID, ownerID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch access: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// laterAccess reports whether a represents a strictly later access time
// than b, treating nil as never accessed.
func laterAccess(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory reads one module_memories row. The SELECT column order must
// match the scan order here.
func scanMemory(row rowScanner) (*types.Memory, error) {
	var memory types.Memory
	var metadataJSON sql.NullString
	var embedding []byte
	var dimension int
	var lastAccessedAt sql.NullTime

	err := row.Scan(
		&memory.OwnerID,
		&memory.ID,
		&memory.Content,
		&metadataJSON,
		&embedding,
		&dimension,
		&memory.AccessCount,
		&lastAccessedAt,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &memory.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		memory.LastAccessedAt = &t
	}

	vec, err := deserializeVector(embedding, dimension)
	if err != nil {
		return nil, err
	}
	memory.FullEmbedding = vec

	return &memory, nil
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
