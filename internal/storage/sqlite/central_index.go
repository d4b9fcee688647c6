package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// candidateSearchMaxEntries caps the number of index embeddings loaded into
// memory per candidate search, newest first.
const candidateSearchMaxEntries = 10_000

// Ensure *CentralIndex implements storage.CentralIndex at compile time.
var _ storage.CentralIndex = (*CentralIndex)(nil)

// CentralIndex implements storage.CentralIndex using SQLite. Shortlisting
// computes cosine similarity in Go over the owner's index embeddings.
type CentralIndex struct {
	db *sql.DB
}

// NewCentralIndex creates a SQLite-backed central index.
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
		return fmt.Errorf("sqlite: failed to marshal keywords: %w", err)
	}
	categoriesJSON, err := json.Marshal(entry.Categories)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal categories: %w", err)
	}

	query := `
		INSERT INTO central_index (
			id, owner_id, module_id, remote_memory_id,
			index_embedding, dimension,
			title, summary, keywords, categories,
			importance_score, access_count, last_accessed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(module_id, remote_memory_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			index_embedding = excluded.index_embedding,
			dimension = excluded.dimension,
			title = excluded.title,
			summary = excluded.summary,
			keywords = excluded.keywords,
			categories = excluded.categories,
			importance_score = excluded.importance_score,
			updated_at = excluded.updated_at
	`

	_, err = c.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.ModuleID,
		entry.RemoteMemoryID,
		nullableBytes(serializeVector(entry.IndexEmbedding)),
		len(entry.IndexEmbedding),
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
		return fmt.Errorf("sqlite: failed to upsert index entry: %w", err)
	}

	return nil
}

// Remove deletes the entry for (moduleID, remoteMemoryID); no-op if absent.
func (c *CentralIndex) Remove(ctx context.Context, moduleID, remoteMemoryID string) error {
	if moduleID == "" || remoteMemoryID == "" {
		return fmt.Errorf("%w: module ID and remote memory ID are required", storage.ErrInvalidInput)
	}

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM central_index WHERE module_id = ? AND remote_memory_id = ?`,
		moduleID, remoteMemoryID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to remove index entry: %w", err)
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

	rows, err := c.db.QueryContext(ctx, `
		SELECT module_id, remote_memory_id, index_embedding, dimension,
		       importance_score, last_accessed_at
		FROM central_index
		WHERE owner_id = ? AND index_embedding IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT ?`, ownerID, candidateSearchMaxEntries)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load index entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []storage.Candidate
	for rows.Next() {
		var cand storage.Candidate
		var embedding []byte
		var dimension int
		var lastAccessedAt sql.NullTime

		if err := rows.Scan(&cand.ModuleID, &cand.RemoteMemoryID, &embedding, &dimension,
			&cand.ImportanceScore, &lastAccessedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan index entry: %w", err)
		}

		vec, err := deserializeVector(embedding, dimension)
		if err != nil {
			continue
		}
		if lastAccessedAt.Valid {
			t := lastAccessedAt.Time
			cand.LastAccessedAt = &t
		}

		cand.CoarseScore = cosineSimilarity(queryVec, vec)
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: index entry rows: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CoarseScore != candidates[j].CoarseScore {
			return candidates[i].CoarseScore > candidates[j].CoarseScore
		}
		if candidates[i].ModuleID != candidates[j].ModuleID {
			return candidates[i].ModuleID < candidates[j].ModuleID
		}
		return candidates[i].RemoteMemoryID < candidates[j].RemoteMemoryID
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	if candidates == nil {
		candidates = []storage.Candidate{}
	}

	return candidates, nil
}

// TouchAccess bumps access_count and last_accessed_at; no-op if absent.
func (c *CentralIndex) TouchAccess(ctx context.Context, moduleID, remoteMemoryID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE central_index
		SET access_count = access_count + 1,
		    last_accessed_at = CURRENT_TIMESTAMP
		WHERE module_id = ? AND remote_memory_id = ?`,
		moduleID, remoteMemoryID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch index access: %w", err)
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
		       index_embedding, dimension,
		       title, summary, keywords, categories,
		       importance_score, access_count, last_accessed_at,
		       created_at, updated_at
		FROM central_index
		WHERE module_id = ?
		ORDER BY remote_memory_id
		LIMIT ? OFFSET ?`, moduleID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list index entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.IndexEntry
	for rows.Next() {
		var entry types.IndexEntry
		var embedding []byte
		var dimension int
		var title, summary, keywordsJSON, categoriesJSON sql.NullString
		var lastAccessedAt sql.NullTime

		err := rows.Scan(
			&entry.ID, &entry.OwnerID, &entry.ModuleID, &entry.RemoteMemoryID,
			&embedding, &dimension,
			&title, &summary, &keywordsJSON, &categoriesJSON,
			&entry.ImportanceScore, &entry.AccessCount, &lastAccessedAt,
			&entry.CreatedAt, &entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan index entry: %w", err)
		}

		if title.Valid {
			entry.Title = title.String
		}
		if summary.Valid {
			entry.Summary = summary.String
		}
		if keywordsJSON.Valid && keywordsJSON.String != "" {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &entry.Keywords); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal keywords: %w", err)
			}
		}
		if categoriesJSON.Valid && categoriesJSON.String != "" {
			if err := json.Unmarshal([]byte(categoriesJSON.String), &entry.Categories); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal categories: %w", err)
			}
		}
		if lastAccessedAt.Valid {
			t := lastAccessedAt.Time
			entry.LastAccessedAt = &t
		}

		vec, err := deserializeVector(embedding, dimension)
		if err != nil {
			return nil, err
		}
		entry.IndexEmbedding = vec

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: index entry rows: %w", err)
	}

	return entries, nil
}
