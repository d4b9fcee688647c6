// Package types defines the core data structures for the Recall federated
// memory system: memories, central index entries, relationships between
// memories, and module descriptors.
package types

// Memory type constants - classify the purpose/nature of a memory via the
// "type" metadata discriminator. The set is advisory: modules may store any
// type string, these are the values the built-in modules use.
const (
	MemoryTypeNote     = "note"
	MemoryTypeTask     = "task"
	MemoryTypePerson   = "person"
	MemoryTypeEvent    = "event"
	MemoryTypeDecision = "decision"
	MemoryTypeDocument = "document"
	MemoryTypeSystem   = "system"
)

// Relationship type constants - common edge types between memories.
// Relationship types are open strings; these are the well-known values.
const (
	RelRelated    = "related"
	RelDependsOn  = "depends_on"
	RelReferences = "references"
	RelSupersedes = "supersedes"
	RelPartOf     = "part_of"
	RelBlocks     = "blocks"
)

// DefaultImportance is the importance score assigned to a central index
// entry when no explicit importance is provided.
const DefaultImportance = 0.5
