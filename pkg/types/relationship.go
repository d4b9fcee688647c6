package types

import "time"

// MemoryRef addresses a memory across module boundaries.
type MemoryRef struct {
	Module   string `json:"module"`
	MemoryID string `json:"memory_id"`
}

// Relationship is a typed, directed, weighted edge between two memories,
// possibly across modules. The graph may contain cycles; traversal code must
// never assume acyclicity.
//
// Uniqueness holds on (SourceModule, SourceMemoryID, TargetModule,
// TargetMemoryID, Type): multiple relationship types between the same pair
// are allowed, duplicates of the same type are not.
type Relationship struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	SourceModule   string `json:"source_module"`
	SourceMemoryID string `json:"source_memory_id"`
	TargetModule   string `json:"target_module"`
	TargetMemoryID string `json:"target_memory_id"`

	// Type is an open string (e.g. "related", "depends_on").
	Type string `json:"type"`

	// Strength is the edge weight (0.0-1.0).
	Strength float64 `json:"strength"`

	Metadata MetadataDoc `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source returns the edge's source as a MemoryRef.
func (r *Relationship) Source() MemoryRef {
	return MemoryRef{Module: r.SourceModule, MemoryID: r.SourceMemoryID}
}

// Target returns the edge's target as a MemoryRef.
func (r *Relationship) Target() MemoryRef {
	return MemoryRef{Module: r.TargetModule, MemoryID: r.TargetMemoryID}
}
