package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Ensure *RelationshipStore implements storage.RelationshipStore at compile time.
var _ storage.RelationshipStore = (*RelationshipStore)(nil)

// RelationshipStore implements storage.RelationshipStore using PostgreSQL.
type RelationshipStore struct {
	db *sql.DB
}

// NewRelationshipStore creates a PostgreSQL-backed relationship store.
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
			return fmt.Errorf("postgres: failed to marshal relationship metadata: %w", err)
		}
	}

	query := `
		INSERT INTO relationships (
			id, owner_id,
			source_module, source_memory_id, target_module, target_memory_id,
			type, strength, metadata,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT(source_module, source_memory_id, target_module, target_memory_id, type) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			strength = EXCLUDED.strength,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
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
		return fmt.Errorf("postgres: failed to link relationship: %w", err)
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
		WHERE owner_id = $1 AND source_module = $2 AND source_memory_id = $3
	`
	args := []interface{}{ownerID, moduleID, memoryID}

	if len(relTypes) > 0 {
		query += ` AND type = ANY($4)`
		args = append(args, pq.Array(relTypes))
	}

	query += ` ORDER BY strength DESC, target_module, target_memory_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query relationships: %w", err)
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
		return nil, fmt.Errorf("postgres: relationship rows: %w", err)
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
		WHERE (source_module = $1 AND source_memory_id = $2)
		   OR (target_module = $1 AND target_memory_id = $2)`,
		moduleID, memoryID)
	if err != nil {
		return fmt.Errorf("postgres: failed to remove relationships: %w", err)
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
		return nil, fmt.Errorf("postgres: scan relationship: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rel.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal relationship metadata: %w", err)
		}
	}

	return &rel, nil
}
