package types

import "time"

// Memory represents a single memory unit owned by exactly one module
// partition and one owner. The ID is unique only within (module, owner);
// cross-module uniqueness is never assumed.
type Memory struct {
	// Core identification fields
	ID      string `json:"id"`       // Module-local unique identifier
	OwnerID string `json:"owner_id"` // User scope; never crosses users
	Content string `json:"content"`  // Raw memory content

	// FullEmbedding is the high-dimensional vector used for accurate
	// within-module similarity search (dimension fixed per deployment).
	FullEmbedding []float32 `json:"full_embedding,omitempty"`

	// Metadata is an open key/value document interpreted only by the module
	// that owns the record. It carries at minimum a "type" discriminator.
	Metadata MetadataDoc `json:"metadata,omitempty"`

	// Quality signals
	AccessCount    int        `json:"access_count"`               // Number of times the memory has been surfaced
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"` // Timestamp of most recent access

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Type returns the "type" metadata discriminator, or an empty string when
// the memory carries no type.
func (m *Memory) Type() string {
	if m.Metadata == nil {
		return ""
	}
	if t, ok := m.Metadata["type"].(string); ok {
		return t
	}
	return ""
}
