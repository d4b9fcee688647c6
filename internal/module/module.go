// Package module defines the contract every memory module fulfils and a
// reference implementation backed by the shared storage layer. A module
// owns its memories completely; the rest of the system only ever reaches
// them through this interface.
package module

import (
	"context"
	"errors"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// ErrUnknownModule is returned when a module ID does not resolve to a
// registered module.
var ErrUnknownModule = errors.New("module: unknown module")

// StoreResult reports the outcome of a Store or Update. IndexWarning is
// non-empty when the memory was persisted but its central index entry
// could not be written; the memory is then invisible to federated search
// until reconciliation repairs it.
type StoreResult struct {
	MemoryID     string
	IndexWarning string
}

// Module is the contract a memory module fulfils. Implementations must be
// safe for concurrent use.
type Module interface {
	// ID returns the stable module identifier.
	ID() string

	// Descriptor returns the module's registration metadata.
	Descriptor() types.ModuleDescriptor

	// Store persists a new memory and registers it in the central index.
	Store(ctx context.Context, ownerID, content string, metadata types.MetadataDoc) (*StoreResult, error)

	// Get retrieves one memory by ID, scoped to the owner.
	Get(ctx context.Context, ownerID, memoryID string) (*types.Memory, error)

	// Update rewrites a memory's content and metadata. The embedding is
	// regenerated only when the content actually changed.
	Update(ctx context.Context, ownerID, memoryID, content string, metadata types.MetadataDoc) (*StoreResult, error)

	// Delete removes a memory along with its index entry and relationships.
	Delete(ctx context.Context, ownerID, memoryID string) error

	// Search ranks the owner's memories in this module against an
	// already-embedded query vector.
	Search(ctx context.Context, ownerID string, queryVec []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error)

	// TouchAccess records that the memory was surfaced to the user,
	// feeding the access stats that ranking reads back over time.
	TouchAccess(ctx context.Context, ownerID, memoryID string) error
}
