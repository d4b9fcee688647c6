// Package search implements the federated query path: routing a query to
// the modules most likely to hold relevant memories, fanning out
// concurrently, and fusing the per-module results into one ranked list.
package search

import (
	"errors"

	"github.com/scrypster/recall/pkg/types"
)

// ErrEmbeddingUnavailable is returned when the query itself cannot be
// embedded. Unlike a failed module branch this is fatal: without a query
// vector there is nothing to search.
var ErrEmbeddingUnavailable = errors.New("search: embedding unavailable")

// ResultItem is one fused search hit.
type ResultItem struct {
	ModuleID string
	Memory   *types.Memory

	// Score components. Similarity is the full-embedding cosine from the
	// module branch; CoarseScore is the routing similarity from the
	// central index (0 when the memory was not shortlisted).
	Similarity  float64
	Importance  float64
	Recency     float64
	CoarseScore float64

	// FusedScore is the final ranking score, including any relationship
	// boost.
	FusedScore float64
}

// ModuleFailure marks a module whose branch did not complete.
type ModuleFailure struct {
	ModuleID string
	Err      error
	TimedOut bool
}

// Result is the outcome of a federated search. A search with failed
// modules is still a success; callers inspect FailedModules to learn
// which partitions are missing from Items.
type Result struct {
	Items         []ResultItem
	FailedModules []ModuleFailure

	// ColdFallback is true when the central index produced no shortlist
	// and every active module was queried instead.
	ColdFallback bool
}

// Options tune a single federated search.
type Options struct {
	// Limit caps the number of fused results (default 10, max 100).
	Limit int

	// Modules are explicitly requested module IDs. They are always
	// searched, in addition to the routed shortlist.
	Modules []string

	// MinScore filters module branch hits below this similarity.
	MinScore float64
}
