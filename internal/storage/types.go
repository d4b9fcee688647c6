package storage

import (
	"errors"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Candidate is one row of the coarse shortlist produced by the central
// index. The score is cosine similarity between the query's index embedding
// and the entry's index embedding — good enough to route, too coarse to rank.
type Candidate struct {
	ModuleID       string
	RemoteMemoryID string

	// CoarseScore is the cosine similarity against the index embedding.
	CoarseScore float64

	// ImportanceScore and LastAccessedAt are carried along so the
	// orchestrator can fuse scores without re-fetching the entry.
	ImportanceScore float64
	LastAccessedAt  *time.Time
}

// ScoredMemory is a memory paired with its within-module similarity score.
type ScoredMemory struct {
	Memory *types.Memory

	// Similarity is cosine similarity against the full embedding (0.0-1.0
	// for normalised vectors).
	Similarity float64
}

// SearchOptions configures a within-module similarity search.
type SearchOptions struct {
	// Limit is the maximum number of results (default: 10, max: 200).
	// The ceiling is twice the federated result cap so fan-out branches
	// keep their full headroom even at the largest fused limit.
	Limit int

	// MinScore drops results whose similarity falls below this value.
	MinScore float64
}

// Normalize applies defaults and clamps the SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
	if o.MinScore < 0.0 {
		o.MinScore = 0.0
	}
	if o.MinScore > 1.0 {
		o.MinScore = 1.0
	}
}

// ListOptions provides pagination for index listing operations.
type ListOptions struct {
	// Limit is the page size (default: 100, max: 1000).
	Limit int

	// Offset is the number of entries to skip.
	Offset int
}

// Normalize applies defaults and clamps the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
