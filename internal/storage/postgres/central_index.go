package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Ensure *CentralIndex implements storage.CentralIndex at compile time.
var _ storage.CentralIndex = (*CentralIndex)(nil)

// CentralIndex implements storage.CentralIndex using PostgreSQL with
// pgvector. Shortlisting runs entirely in SQL against the ivfflat index.
type CentralIndex struct {
	db *sql.DB
}

// NewCentralIndex creates a PostgreSQL-backed central index.
func NewCentralIndex(d *DB) *CentralIndex {
	return &CentralIndex{db: d.conn}
}

// Upsert creates or overwrites the entry keyed by (module_id,
// remote_memory_id). The UNIQUE constraint makes concurrent writers for the
// same key converge on the last write.
func (c *CentralIndex) Upsert(ctx context.Context, entry *types.IndexEntry) error {
	if entry == nil {
		return storage.ErrInvalidInput
	}
	if entry.OwnerID == "" || entry.ModuleID == "" || entry.RemoteMemoryID == "" {
		return fmt.Errorf("%w: owner, module and remote memory IDs are required", storage.ErrInvalidInput)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ImportanceScore == 0 {
		entry.ImportanceScore = types.DefaultImportance
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = time.Now()

	keywordsJSON, err := json.Marshal(entry.Keywords)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal keywords: %w", err)
	}
	categoriesJSON, err := json.Marshal(entry.Categories)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal categories: %w", err)
	}

	query := `
		INSERT INTO central_index (
			id, owner_id, module_id, remote_memory_id,
			index_embedding,
			title, summary, keywords, categories,
			importance_score, access_count, last_accessed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT(module_id, remote_memory_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			index_embedding = EXCLUDED.index_embedding,
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			keywords = EXCLUDED.keywords,
			categories = EXCLUDED.categories,
			importance_score = EXCLUDED.importance_score,
			updated_at = EXCLUDED.updated_at
	`

	_, err = c.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.ModuleID,
		entry.RemoteMemoryID,
		nullableVector(entry.IndexEmbedding),
		entry.Title,
		entry.Summary,
		string(keywordsJSON),
		string(categoriesJSON),
		entry.ImportanceScore,
		entry.AccessCount,
		nullableTimePtr(entry.LastAccessedAt),
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert index entry: %w", err)
	}

	return nil
}

// Remove deletes the entry for (moduleID, remoteMemoryID); no-op if absent.
func (c *CentralIndex) Remove(ctx context.Context, moduleID, remoteMemoryID string) error {
	if moduleID == "" || remoteMemoryID == "" {
		return fmt.Errorf("%w: module ID and remote memory ID are required", storage.ErrInvalidInput)
	}

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM central_index WHERE module_id = $1 AND remote_memory_id = $2`,
		moduleID, remoteMemoryID)
	if err != nil {
		return fmt.Errorf("postgres: failed to remove index entry: %w", err)
	}

	return nil
}

// CandidateSearch returns the owner's topN entries by cosine similarity of
// the index embedding. Ordering is deterministic: similarity descending,
// ties by (module_id, remote_memory_id) lexical order.
func (c *CentralIndex) CandidateSearch(ctx context.Context, ownerID string, queryVec []float32, topN int) ([]storage.Candidate, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if topN < 1 {
		topN = 10
	}
	if len(queryVec) == 0 {
		return []storage.Candidate{}, nil
	}

	vec := pgvector.NewVector(queryVec)

	query := `
		SELECT module_id, remote_memory_id,
		       1 - (index_embedding <=> $2::vector) AS coarse_score,
		       importance_score, last_accessed_at
		FROM central_index
		WHERE owner_id = $1 AND index_embedding IS NOT NULL
		ORDER BY index_embedding <=> $2::vector ASC, module_id, remote_memory_id
		LIMIT $3
	`

	rows, err := c.db.QueryContext(ctx, query, ownerID, vec, topN)
	if err != nil {
		return nil, fmt.Errorf("postgres: candidate search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := []storage.Candidate{}
	for rows.Next() {
		var cand storage.Candidate
		var lastAccessedAt sql.NullTime

		if err := rows.Scan(&cand.ModuleID, &cand.RemoteMemoryID, &cand.CoarseScore,
			&cand.ImportanceScore, &lastAccessedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan candidate: %w", err)
		}
		if lastAccessedAt.Valid {
			t := lastAccessedAt.Time
			cand.LastAccessedAt = &t
		}

		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: candidate rows: %w", err)
	}

	return candidates, nil
}

// TouchAccess bumps access_count and last_accessed_at; no-op if absent.
func (c *CentralIndex) TouchAccess(ctx context.Context, moduleID, remoteMemoryID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE central_index
		SET access_count = access_count + 1,
		    last_accessed_at = NOW()
		WHERE module_id = $1 AND remote_memory_id = $2`,
		moduleID, remoteMemoryID)
	if err != nil {
		return fmt.Errorf("postgres: failed to touch index access: %w", err)
	}
	return nil
}

// List pages through a module's entries ordered by remote memory ID.
func (c *CentralIndex) List(ctx context.Context, moduleID string, opts storage.ListOptions) ([]types.IndexEntry, error) {
	opts.Normalize()

	if moduleID == "" {
		return nil, fmt.Errorf("%w: module ID is required", storage.ErrInvalidInput)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, owner_id, module_id, remote_memory_id,
		       index_embedding,
		       title, summary, keywords, categories,
		       importance_score, access_count, last_accessed_at,
		       created_at, updated_at
		FROM central_index
		WHERE module_id = $1
		ORDER BY remote_memory_id
		LIMIT $2 OFFSET $3`, moduleID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list index entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.IndexEntry
	for rows.Next() {
		var entry types.IndexEntry
		var embedding pgvector.Vector
		var title, summary, keywordsJSON, categoriesJSON sql.NullString
		var lastAccessedAt sql.NullTime

		err := rows.Scan(
			&entry.ID, &entry.OwnerID, &entry.ModuleID, &entry.RemoteMemoryID,
			&embedding,
			&title, &summary, &keywordsJSON, &categoriesJSON,
			&entry.ImportanceScore, &entry.AccessCount, &lastAccessedAt,
			&entry.CreatedAt, &entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan index entry: %w", err)
		}

		if title.Valid {
			entry.Title = title.String
		}
		if summary.Valid {
			entry.Summary = summary.String
		}
		if keywordsJSON.Valid && keywordsJSON.String != "" {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &entry.Keywords); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal keywords: %w", err)
			}
		}
		if categoriesJSON.Valid && categoriesJSON.String != "" {
			if err := json.Unmarshal([]byte(categoriesJSON.String), &entry.Categories); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal categories: %w", err)
			}
		}
		if lastAccessedAt.Valid {
			t := lastAccessedAt.Time
			entry.LastAccessedAt = &t
		}
		entry.IndexEmbedding = embedding.Slice()

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: index entry rows: %w", err)
	}

	return entries, nil
}
