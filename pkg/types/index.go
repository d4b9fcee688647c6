package types

import "time"

// IndexEntry is the central index projection of a memory: the minimum data
// needed to route a query and rank a coarse shortlist. It is a derived
// cache, never the source of truth — the memory itself lives in its module
// partition and the entry may transiently be stale or missing.
//
// At most one entry exists per (ModuleID, RemoteMemoryID) pair.
type IndexEntry struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	ModuleID       string `json:"module_id"`
	RemoteMemoryID string `json:"remote_memory_id"`

	// IndexEmbedding is the reduced-dimension vector used only for fast
	// cross-module shortlisting, never for final ranking.
	IndexEmbedding []float32 `json:"index_embedding,omitempty"`

	Title      string   `json:"title,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Categories []string `json:"categories,omitempty"`

	// ImportanceScore weighs the entry in score fusion (0.0-1.0, default 0.5).
	ImportanceScore float64 `json:"importance_score"`

	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
