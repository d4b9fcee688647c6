package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Ensure *RelationshipStore implements storage.RelationshipStore at compile time.
var _ storage.RelationshipStore = (*RelationshipStore)(nil)

// RelationshipStore implements storage.RelationshipStore using SQLite.
type RelationshipStore struct {
	db *sql.DB
}

// NewRelationshipStore creates a SQLite-backed relationship store.
func NewRelationshipStore(d *DB) *RelationshipStore {
	return &RelationshipStore{db: d.conn}
}

// Link upserts an edge keyed by the 5-tuple uniqueness constraint.
func (r *RelationshipStore) Link(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if rel.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if rel.SourceModule == "" || rel.SourceMemoryID == "" || rel.TargetModule == "" || rel.TargetMemoryID == "" {
		return fmt.Errorf("%w: source and target references are required", storage.ErrInvalidInput)
	}
	if rel.Type == "" {
		return fmt.Errorf("%w: relationship type is required", storage.ErrInvalidInput)
	}
	if rel.Strength < 0 || rel.Strength > 1 {
		return fmt.Errorf("%w: strength must be between 0.0 and 1.0", storage.ErrInvalidInput)
	}

	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}
	rel.UpdatedAt = time.Now()

	var metadataJSON []byte
	var err error
	if rel.Metadata != nil {
		metadataJSON, err = json.Marshal(rel.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal relationship metadata: %w", err)
		}
	}

	query := `
		INSERT INTO relationships (
			id, owner_id,
			source_module, source_memory_id, target_module, target_memory_id,
			type, strength, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_module, source_memory_id, target_module, target_memory_id, type) DO UPDATE SET
			owner_id = excluded.owner_id,
			strength = excluded.strength,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rel.ID,
		rel.OwnerID,
		rel.SourceModule,
		rel.SourceMemoryID,
		rel.TargetModule,
		rel.TargetMemoryID,
		rel.Type,
		rel.Strength,
		nullableBytes(metadataJSON),
		rel.CreatedAt,
		rel.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to link relationship: %w", err)
	}

	return nil
}

// RelatedTo returns the single-hop outgoing edges from (moduleID, memoryID),
// scoped to the owner and optionally filtered by type. Results are ordered
// by strength descending for stable presentation.
func (r *RelationshipStore) RelatedTo(ctx context.Context, ownerID, moduleID, memoryID string, relTypes []string) ([]types.Relationship, error) {
	if ownerID == "" || moduleID == "" || memoryID == "" {
		return nil, fmt.Errorf("%w: owner, module and memory IDs are required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, owner_id,
		       source_module, source_memory_id, target_module, target_memory_id,
		       type, strength, metadata,
		       created_at, updated_at
		FROM relationships
		WHERE owner_id = ? AND source_module = ? AND source_memory_id = ?
	`
	args := []interface{}{ownerID, moduleID, memoryID}

	if len(relTypes) > 0 {
		placeholders := strings.Repeat("?,", len(relTypes))
		query += ` AND type IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, t := range relTypes {
			args = append(args, t)
		}
	}

	query += ` ORDER BY strength DESC, target_module, target_memory_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query relationships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rels []types.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: relationship rows: %w", err)
	}

	return rels, nil
}

// RemoveFor deletes every edge referencing the memory as source or target.
func (r *RelationshipStore) RemoveFor(ctx context.Context, moduleID, memoryID string) error {
	if moduleID == "" || memoryID == "" {
		return fmt.Errorf("%w: module ID and memory ID are required", storage.ErrInvalidInput)
	}

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE (source_module = ? AND source_memory_id = ?)
		   OR (target_module = ? AND target_memory_id = ?)`,
		moduleID, memoryID, moduleID, memoryID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to remove relationships: %w", err)
	}

	return nil
}

// scanRelationship reads one relationships row.
func scanRelationship(rows *sql.Rows) (*types.Relationship, error) {
	var rel types.Relationship
	var metadataJSON sql.NullString

	err := rows.Scan(
		&rel.ID,
		&rel.OwnerID,
		&rel.SourceModule,
		&rel.SourceMemoryID,
		&rel.TargetModule,
		&rel.TargetMemoryID,
		&rel.Type,
		&rel.Strength,
		&metadataJSON,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan relationship: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rel.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal relationship metadata: %w", err)
		}
	}

	return &rel, nil
}
