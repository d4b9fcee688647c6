package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/internal/module"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// relationshipBoost is the maximum fused-score boost a surfaced result
// gains from being linked to another surfaced result. Scaled by edge
// strength.
const relationshipBoost = 0.05

// branchResultFactor sizes each module branch's result budget relative
// to the requested limit, so fusion can reorder across modules without
// starving any single partition.
const branchResultFactor = 2

// Orchestrator runs federated searches: embed once, route, fan out with
// independent timeouts, fuse, rank.
type Orchestrator struct {
	registry   *module.Registry
	index      storage.CentralIndex
	rels       storage.RelationshipStore
	gateway    embedding.Gateway
	router     *Router
	reconciler *Reconciler
	fuser      *fuser

	indexDims      int
	moduleTimeout  time.Duration
	overallTimeout time.Duration

	logger  *log.Logger
	metrics *metrics.Manager
}

// OrchestratorConfig wires an Orchestrator to its collaborators.
type OrchestratorConfig struct {
	Registry      *module.Registry
	Index         storage.CentralIndex
	Relationships storage.RelationshipStore
	Gateway       embedding.Gateway
	Reconciler    *Reconciler
	Search        config.SearchConfig
	IndexDims     int
	Logger        *log.Logger
	Metrics       *metrics.Manager
}

// NewOrchestrator creates an orchestrator from its configuration.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Registry == nil || cfg.Index == nil || cfg.Relationships == nil || cfg.Gateway == nil {
		return nil, fmt.Errorf("%w: registry, index, relationships and gateway are required", storage.ErrInvalidInput)
	}
	if err := cfg.Search.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.IndexDims < 1 {
		return nil, fmt.Errorf("%w: index dimensions must be positive", storage.ErrInvalidInput)
	}
	if cfg.Search.ModuleTimeout <= 0 {
		cfg.Search.ModuleTimeout = 2 * time.Second
	}
	if cfg.Search.OverallTimeout <= 0 {
		cfg.Search.OverallTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewManager(metrics.Config{Enabled: false})
	}

	return &Orchestrator{
		registry:       cfg.Registry,
		index:          cfg.Index,
		rels:           cfg.Relationships,
		gateway:        cfg.Gateway,
		router:         NewRouter(cfg.Index, cfg.Registry, cfg.Search.RouterTopK, cfg.Search.CandidateTopN, cfg.Logger),
		reconciler:     cfg.Reconciler,
		fuser:          newFuser(cfg.Search.Weights, cfg.Search.RecencyHalfLife),
		indexDims:      cfg.IndexDims,
		moduleTimeout:  cfg.Search.ModuleTimeout,
		overallTimeout: cfg.Search.OverallTimeout,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}, nil
}

// itemKey identifies one memory across the merged result set.
type itemKey struct {
	moduleID string
	memoryID string
}

// branchOutcome carries one module branch's settled result.
type branchOutcome struct {
	moduleID string
	results  []storage.ScoredMemory
	err      error
}

// FederatedSearch runs one query across the user's modules. A failed or
// slow module never fails the query; it is reported in
// Result.FailedModules and the remaining branches' results are returned.
// Only an unembeddable query is fatal.
func (o *Orchestrator) FederatedSearch(ctx context.Context, ownerID, query string, opts Options) (*Result, error) {
	started := time.Now()

	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	if opts.Limit < 1 {
		opts.Limit = 10
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	embedStart := time.Now()
	fullVec, err := o.gateway.Embed(ctx, query)
	if err != nil {
		o.metrics.RecordEmbed("error", time.Since(embedStart))
		o.metrics.RecordSearch("error", time.Since(started), 0)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	o.metrics.RecordEmbed("ok", time.Since(embedStart))

	indexVec, err := o.gateway.Compress(fullVec, o.indexDims)
	if err != nil {
		o.metrics.RecordSearch("error", time.Since(started), 0)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	decision, err := o.router.SelectModules(ctx, ownerID, indexVec, opts.Modules)
	if err != nil {
		o.metrics.RecordSearch("error", time.Since(started), 0)
		return nil, err
	}

	outcomes, failures := o.fanOut(ctx, ownerID, fullVec, opts, decision.Modules)

	result := o.fuse(ctx, ownerID, opts, decision, outcomes)
	result.FailedModules = failures
	result.ColdFallback = decision.ColdFallback

	o.touchSurfaced(ctx, ownerID, result.Items)

	outcome := "ok"
	if len(failures) > 0 {
		outcome = "partial"
	}
	o.metrics.RecordSearch(outcome, time.Since(started), len(decision.Modules))

	return result, nil
}

// fanOut runs every routed module concurrently. Each branch gets an
// independent timeout; the overall deadline settles whatever has not
// finished as a timeout failure so one slow partition cannot hold the
// query hostage.
func (o *Orchestrator) fanOut(ctx context.Context, ownerID string, queryVec []float32, opts Options, routed []Routed) (map[string][]storage.ScoredMemory, []ModuleFailure) {
	ch := make(chan branchOutcome, len(routed))
	branchOpts := storage.SearchOptions{
		Limit:    opts.Limit * branchResultFactor,
		MinScore: opts.MinScore,
	}

	for _, rt := range routed {
		go func(m module.Module) {
			branchStart := time.Now()
			bctx, cancel := context.WithTimeout(ctx, o.moduleTimeout)
			defer cancel()

			results, err := m.Search(bctx, ownerID, queryVec, branchOpts)
			o.metrics.RecordBranch(m.ID(), time.Since(branchStart))
			ch <- branchOutcome{moduleID: m.ID(), results: results, err: err}
		}(rt.Module)
	}

	outcomes := make(map[string][]storage.ScoredMemory, len(routed))
	var failures []ModuleFailure
	settled := make(map[string]bool, len(routed))

	overall := time.NewTimer(o.overallTimeout)
	defer overall.Stop()

collect:
	for i := 0; i < len(routed); i++ {
		select {
		case out := <-ch:
			settled[out.moduleID] = true
			if out.err != nil {
				timedOut := errors.Is(out.err, context.DeadlineExceeded)
				kind := "error"
				if timedOut {
					kind = "timeout"
				}
				o.metrics.RecordBranchFailure(out.moduleID, kind)
				o.logger.Warn("module search branch failed",
					"module", out.moduleID, "timeout", timedOut, "err", out.err)
				failures = append(failures, ModuleFailure{
					ModuleID: out.moduleID,
					Err:      out.err,
					TimedOut: timedOut,
				})
				continue
			}
			outcomes[out.moduleID] = out.results
		case <-overall.C:
			break collect
		case <-ctx.Done():
			break collect
		}
	}

	// Branches still in flight when the deadline hit are timeouts.
	for _, rt := range routed {
		id := rt.Module.ID()
		if settled[id] {
			continue
		}
		o.metrics.RecordBranchFailure(id, "timeout")
		failures = append(failures, ModuleFailure{
			ModuleID: id,
			Err:      context.DeadlineExceeded,
			TimedOut: true,
		})
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].ModuleID < failures[j].ModuleID
	})

	return outcomes, failures
}

// fuse merges branch results into the final ranked list. It also flags
// shortlisted candidates that their module did not return so the
// reconciler can verify them; they are never surfaced from the index
// alone.
func (o *Orchestrator) fuse(ctx context.Context, ownerID string, opts Options, decision *RouteDecision, outcomes map[string][]storage.ScoredMemory) *Result {
	merged := make(map[itemKey]ResultItem)

	for _, rt := range decision.Modules {
		moduleID := rt.Module.ID()
		results, ok := outcomes[moduleID]
		if !ok {
			continue
		}

		returned := make(map[string]bool, len(results))
		for _, scored := range results {
			returned[scored.Memory.ID] = true

			importance := types.DefaultImportance
			coarse := 0.0
			if cand, ok := rt.Candidates[scored.Memory.ID]; ok {
				importance = cand.ImportanceScore
				coarse = cand.CoarseScore
			}

			recency := o.fuser.recencyDecay(scored.Memory.LastAccessedAt, scored.Memory.CreatedAt)
			item := ResultItem{
				ModuleID:    moduleID,
				Memory:      scored.Memory,
				Similarity:  scored.Similarity,
				Importance:  importance,
				Recency:     recency,
				CoarseScore: coarse,
				FusedScore:  o.fuser.fuse(scored.Similarity, importance, recency),
			}

			key := itemKey{moduleID: moduleID, memoryID: scored.Memory.ID}
			if existing, ok := merged[key]; !ok || item.FusedScore > existing.FusedScore {
				merged[key] = item
			}
		}

		if o.reconciler != nil {
			for memoryID := range rt.Candidates {
				if !returned[memoryID] {
					o.metrics.RecordStaleDrop()
					o.reconciler.Flag(ownerID, moduleID, memoryID)
				}
			}
		}
	}

	items := make([]ResultItem, 0, len(merged))
	for _, item := range merged {
		items = append(items, item)
	}

	o.applyRelationshipBoost(ctx, ownerID, items)

	sort.Slice(items, func(i, j int) bool {
		if items[i].FusedScore != items[j].FusedScore {
			return items[i].FusedScore > items[j].FusedScore
		}
		if items[i].ModuleID != items[j].ModuleID {
			return items[i].ModuleID < items[j].ModuleID
		}
		return items[i].Memory.ID < items[j].Memory.ID
	})

	if len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	return &Result{Items: items}
}

// applyRelationshipBoost raises the fused score of surfaced results that
// another surfaced result links to, proportional to edge strength.
// Single hop only.
func (o *Orchestrator) applyRelationshipBoost(ctx context.Context, ownerID string, items []ResultItem) {
	if len(items) < 2 {
		return
	}

	surfaced := make(map[string]int, len(items)) // module/memory -> index into items
	for i, item := range items {
		surfaced[item.ModuleID+"/"+item.Memory.ID] = i
	}

	for _, item := range items {
		edges, err := o.rels.RelatedTo(ctx, ownerID, item.ModuleID, item.Memory.ID, nil)
		if err != nil {
			o.logger.Warn("relationship lookup failed during fusion",
				"module", item.ModuleID, "memory_id", item.Memory.ID, "err", err)
			continue
		}
		for _, edge := range edges {
			if idx, ok := surfaced[edge.TargetModule+"/"+edge.TargetMemoryID]; ok {
				items[idx].FusedScore += relationshipBoost * edge.Strength
			}
		}
	}
}

// touchSurfaced bumps access stats for every surfaced entry, best-effort.
// Both the index entry and the memory itself are touched: the module-level
// last-accessed time feeds the recency component of future rankings, so
// memories surfaced often rank slightly higher at equal similarity.
func (o *Orchestrator) touchSurfaced(ctx context.Context, ownerID string, items []ResultItem) {
	for _, item := range items {
		if err := o.index.TouchAccess(ctx, item.ModuleID, item.Memory.ID); err != nil {
			o.logger.Warn("failed to touch index access",
				"module", item.ModuleID, "memory_id", item.Memory.ID, "err", err)
		}

		mod, err := o.registry.Get(item.ModuleID)
		if err != nil {
			continue
		}
		if err := mod.TouchAccess(ctx, ownerID, item.Memory.ID); err != nil {
			o.logger.Warn("failed to touch memory access",
				"module", item.ModuleID, "memory_id", item.Memory.ID, "err", err)
		}
	}
}
