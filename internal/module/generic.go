package module

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Ensure *GenericModule implements Module at compile time.
var _ Module = (*GenericModule)(nil)

// GenericModule is the reference module implementation. It stores memories
// in a storage.ModuleStore partition, embeds content through the gateway,
// and keeps the central index updated best-effort: a failed index write
// never rolls back the memory, it degrades to a warning and leaves the
// entry for reconciliation.
type GenericModule struct {
	descriptor types.ModuleDescriptor
	store      storage.ModuleStore
	index      storage.CentralIndex
	rels       storage.RelationshipStore
	gateway    embedding.Gateway
	indexDims  int
	logger     *log.Logger
	metrics    *metrics.Manager
}

// GenericConfig wires a GenericModule to its collaborators.
type GenericConfig struct {
	Descriptor      types.ModuleDescriptor
	Store           storage.ModuleStore
	Index           storage.CentralIndex
	Relationships   storage.RelationshipStore
	Gateway         embedding.Gateway
	IndexDimensions int
	Logger          *log.Logger
	Metrics         *metrics.Manager
}

// NewGeneric creates a module from its configuration.
func NewGeneric(cfg GenericConfig) (*GenericModule, error) {
	if cfg.Descriptor.ModuleID == "" {
		return nil, fmt.Errorf("%w: module ID is required", storage.ErrInvalidInput)
	}
	if cfg.Store == nil || cfg.Index == nil || cfg.Relationships == nil || cfg.Gateway == nil {
		return nil, fmt.Errorf("%w: store, index, relationships and gateway are required", storage.ErrInvalidInput)
	}
	if cfg.IndexDimensions < 1 {
		return nil, fmt.Errorf("%w: index dimensions must be positive", storage.ErrInvalidInput)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewManager(metrics.Config{Enabled: false})
	}

	return &GenericModule{
		descriptor: cfg.Descriptor,
		store:      cfg.Store,
		index:      cfg.Index,
		rels:       cfg.Relationships,
		gateway:    cfg.Gateway,
		indexDims:  cfg.IndexDimensions,
		logger:     cfg.Logger.With("module", cfg.Descriptor.ModuleID),
		metrics:    cfg.Metrics,
	}, nil
}

// ID returns the stable module identifier.
func (g *GenericModule) ID() string {
	return g.descriptor.ModuleID
}

// Descriptor returns the module's registration metadata.
func (g *GenericModule) Descriptor() types.ModuleDescriptor {
	return g.descriptor
}

// Store persists a new memory and registers it in the central index.
func (g *GenericModule) Store(ctx context.Context, ownerID, content string, metadata types.MetadataDoc) (*StoreResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	if metadata != nil {
		if err := metadata.Validate(); err != nil {
			return nil, err
		}
	}

	vec, err := g.gateway.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	now := time.Now()
	memory := &types.Memory{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Content:       content,
		FullEmbedding: vec,
		Metadata:      metadata.Clone(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := g.store.Put(ctx, memory); err != nil {
		return nil, err
	}

	result := &StoreResult{MemoryID: memory.ID}
	if warn := g.upsertIndexEntry(ctx, memory); warn != "" {
		result.IndexWarning = warn
	}

	return result, nil
}

// Get retrieves one memory by ID, scoped to the owner.
func (g *GenericModule) Get(ctx context.Context, ownerID, memoryID string) (*types.Memory, error) {
	return g.store.Get(ctx, ownerID, memoryID)
}

// Update rewrites a memory's content and metadata. The embedding is
// regenerated only when the content actually changed.
func (g *GenericModule) Update(ctx context.Context, ownerID, memoryID, content string, metadata types.MetadataDoc) (*StoreResult, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	if metadata != nil {
		if err := metadata.Validate(); err != nil {
			return nil, err
		}
	}

	memory, err := g.store.Get(ctx, ownerID, memoryID)
	if err != nil {
		return nil, err
	}

	if content != memory.Content {
		vec, err := g.gateway.Embed(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		memory.Content = content
		memory.FullEmbedding = vec
	}
	if metadata != nil {
		memory.Metadata = metadata.Clone()
	}
	memory.UpdatedAt = time.Now()

	if err := g.store.Put(ctx, memory); err != nil {
		return nil, err
	}

	result := &StoreResult{MemoryID: memory.ID}
	if warn := g.upsertIndexEntry(ctx, memory); warn != "" {
		result.IndexWarning = warn
	}

	return result, nil
}

// Delete removes a memory. The index entry and any relationships are
// removed best-effort afterwards; leftovers are repaired by reconciliation.
func (g *GenericModule) Delete(ctx context.Context, ownerID, memoryID string) error {
	if err := g.store.Delete(ctx, ownerID, memoryID); err != nil {
		return err
	}

	if err := g.index.Remove(ctx, g.ID(), memoryID); err != nil {
		g.metrics.RecordIndexOp("remove", "error")
		g.logger.Warn("failed to remove index entry after delete",
			"memory_id", memoryID, "err", err)
	} else {
		g.metrics.RecordIndexOp("remove", "ok")
	}

	if err := g.rels.RemoveFor(ctx, g.ID(), memoryID); err != nil {
		g.logger.Warn("failed to remove relationships after delete",
			"memory_id", memoryID, "err", err)
	}

	return nil
}

// Search ranks the owner's memories in this partition against an
// already-embedded query vector.
func (g *GenericModule) Search(ctx context.Context, ownerID string, queryVec []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	return g.store.SimilaritySearch(ctx, ownerID, queryVec, opts)
}

// TouchAccess bumps the memory's access count and last-accessed time.
func (g *GenericModule) TouchAccess(ctx context.Context, ownerID, memoryID string) error {
	return g.store.TouchAccess(ctx, ownerID, memoryID)
}

// upsertIndexEntry writes the memory's central index entry. Returns a
// warning string instead of an error: the memory is already durable and
// an index miss is repairable.
func (g *GenericModule) upsertIndexEntry(ctx context.Context, memory *types.Memory) string {
	indexVec, err := g.gateway.Compress(memory.FullEmbedding, g.indexDims)
	if err != nil {
		g.metrics.RecordIndexOp("upsert", "error")
		g.logger.Warn("failed to compress embedding for index",
			"memory_id", memory.ID, "err", err)
		return fmt.Sprintf("memory stored but not indexed: %v", err)
	}

	entry := &types.IndexEntry{
		OwnerID:         memory.OwnerID,
		ModuleID:        g.ID(),
		RemoteMemoryID:  memory.ID,
		IndexEmbedding:  indexVec,
		Title:           extractTitle(memory.Content),
		Summary:         extractSummary(memory.Content),
		Keywords:        extractKeywords(memory.Content),
		Categories:      memory.Metadata.StringList("categories"),
		ImportanceScore: importanceFrom(memory.Metadata),
	}

	if err := g.index.Upsert(ctx, entry); err != nil {
		g.metrics.RecordIndexOp("upsert", "error")
		g.logger.Warn("failed to upsert index entry",
			"memory_id", memory.ID, "err", err)
		return fmt.Sprintf("memory stored but not indexed: %v", err)
	}

	g.metrics.RecordIndexOp("upsert", "ok")
	return ""
}

// importanceFrom reads an optional importance score from metadata,
// clamped to [0, 1]; absent or malformed values fall back to the default.
func importanceFrom(metadata types.MetadataDoc) float64 {
	if metadata == nil {
		return types.DefaultImportance
	}
	v, ok := metadata["importance"]
	if !ok {
		return types.DefaultImportance
	}

	var score float64
	switch n := v.(type) {
	case float64:
		score = n
	case int:
		score = float64(n)
	default:
		return types.DefaultImportance
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
