// Package storage provides composable storage interfaces for the Recall
// federated memory system.
//
// The storage layer is split along ownership lines: each memory module owns
// a ModuleStore partition, the central index owns the cross-module routing
// table, and the relationship store owns the directed edge table. Interfaces
// are small so backends (PostgreSQL with pgvector, SQLite for local
// deployments and tests) can implement them independently.
package storage

import (
	"context"

	"github.com/scrypster/recall/pkg/types"
)

// ModuleStore persists the memories of one module partition. Every operation
// is scoped by ownerID; an implementation must never return another owner's
// rows. IDs are unique only within (module, owner).
type ModuleStore interface {
	// Put creates or updates a memory (upsert semantics keyed by owner+id).
	Put(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory. Returns ErrNotFound if absent.
	Get(ctx context.Context, ownerID, id string) (*types.Memory, error)

	// Delete hard-deletes a memory. Returns ErrNotFound if absent.
	Delete(ctx context.Context, ownerID, id string) error

	// SimilaritySearch ranks the owner's memories by cosine similarity of
	// the full embedding against queryVec, descending; ties break by
	// last_accessed_at descending. Results below opts.MinScore are dropped.
	SimilaritySearch(ctx context.Context, ownerID string, queryVec []float32, opts SearchOptions) ([]ScoredMemory, error)

	// TouchAccess atomically increments access_count and refreshes
	// last_accessed_at. Returns ErrNotFound if the memory does not exist.
	TouchAccess(ctx context.Context, ownerID, id string) error
}

// CentralIndex is the cross-module routing table: one compact entry per
// memory, written best-effort on every module store/update/delete. It is a
// repairable cache of the module partitions, never the source of truth.
type CentralIndex interface {
	// Upsert creates or overwrites the entry for the entry's
	// (ModuleID, RemoteMemoryID) pair. Calling twice with identical keys
	// leaves exactly one entry with the latest values.
	Upsert(ctx context.Context, entry *types.IndexEntry) error

	// Remove deletes the entry for (moduleID, remoteMemoryID).
	// It is a no-op when the entry is absent.
	Remove(ctx context.Context, moduleID, remoteMemoryID string) error

	// CandidateSearch returns the owner's topN entries by cosine similarity
	// of the index embedding, descending. The result is a coarse shortlist
	// for routing, not a final ranking.
	CandidateSearch(ctx context.Context, ownerID string, queryVec []float32, topN int) ([]Candidate, error)

	// TouchAccess increments access_count and refreshes last_accessed_at on
	// the entry. It is a no-op when the entry is absent.
	TouchAccess(ctx context.Context, moduleID, remoteMemoryID string) error

	// List pages through a module's entries, ordered by remote memory ID.
	// Used by the reconciliation sweep.
	List(ctx context.Context, moduleID string, opts ListOptions) ([]types.IndexEntry, error)
}

// RelationshipStore manages the directed, typed, weighted edges linking
// memories across modules. The graph may contain cycles.
type RelationshipStore interface {
	// Link upserts an edge keyed by (sourceModule, sourceMemoryID,
	// targetModule, targetMemoryID, type). Concurrent writers for the same
	// key converge on the last write rather than creating duplicates.
	Link(ctx context.Context, rel *types.Relationship) error

	// RelatedTo returns the single-hop outgoing edges from the given memory,
	// optionally filtered by relationship type. Multi-hop traversal is
	// deliberately not provided; callers needing transitive closure must
	// iterate with their own visited set and hop bound.
	RelatedTo(ctx context.Context, ownerID, moduleID, memoryID string, relTypes []string) ([]types.Relationship, error)

	// RemoveFor deletes every edge referencing the memory as source or
	// target. Used by the module delete cascade.
	RemoveFor(ctx context.Context, moduleID, memoryID string) error
}
