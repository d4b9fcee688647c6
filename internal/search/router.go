package search

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/scrypster/recall/internal/module"
	"github.com/scrypster/recall/internal/storage"
)

// Routed is one module selected for the fan-out, together with the index
// candidates that pointed at it. The candidate map is consulted during
// fusion for coarse scores and during staleness detection.
type Routed struct {
	Module      module.Module
	CoarseScore float64
	Candidates  map[string]storage.Candidate // keyed by remote memory ID
}

// RouteDecision is the router's output for one query.
type RouteDecision struct {
	Modules      []Routed
	ColdFallback bool
}

// Router turns a shortlist of central index candidates into the set of
// modules worth searching.
type Router struct {
	index         storage.CentralIndex
	registry      *module.Registry
	topK          int
	candidateTopN int
	logger        *log.Logger
}

// NewRouter creates a router. topK bounds the number of shortlisted
// modules per query; candidateTopN is how many index candidates feed the
// grouping.
func NewRouter(index storage.CentralIndex, registry *module.Registry, topK, candidateTopN int, logger *log.Logger) *Router {
	if topK < 1 {
		topK = 3
	}
	if candidateTopN < 1 {
		candidateTopN = 50
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		index:         index,
		registry:      registry,
		topK:          topK,
		candidateTopN: candidateTopN,
		logger:        logger,
	}
}

// SelectModules picks the modules to fan out to. Explicitly named modules
// are always included and must exist; the rest of the selection comes
// from grouping index candidates per module, scored by the best coarse
// similarity, with candidate count breaking ties. When the index yields
// nothing (cold index, or the index itself failed) every active module is
// searched so correctness never depends on the cache.
func (r *Router) SelectModules(ctx context.Context, ownerID string, indexVec []float32, explicit []string) (*RouteDecision, error) {
	selected := make(map[string]*Routed)

	for _, id := range explicit {
		m, err := r.registry.Get(id)
		if err != nil {
			return nil, err
		}
		selected[id] = &Routed{Module: m, Candidates: map[string]storage.Candidate{}}
	}

	candidates, err := r.index.CandidateSearch(ctx, ownerID, indexVec, r.candidateTopN)
	if err != nil {
		r.logger.Warn("candidate search failed, falling back to all active modules", "err", err)
		candidates = nil
	}

	type group struct {
		score      float64
		candidates map[string]storage.Candidate
	}
	groups := make(map[string]*group)
	for _, cand := range candidates {
		g, ok := groups[cand.ModuleID]
		if !ok {
			g = &group{candidates: map[string]storage.Candidate{}}
			groups[cand.ModuleID] = g
		}
		if cand.CoarseScore > g.score {
			g.score = cand.CoarseScore
		}
		g.candidates[cand.RemoteMemoryID] = cand
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		gi, gj := groups[ids[i]], groups[ids[j]]
		if gi.score != gj.score {
			return gi.score > gj.score
		}
		if len(gi.candidates) != len(gj.candidates) {
			return len(gi.candidates) > len(gj.candidates)
		}
		return ids[i] < ids[j]
	})

	shortlisted := 0
	for _, id := range ids {
		g := groups[id]

		if routed, ok := selected[id]; ok {
			// Explicit module also shortlisted: keep its candidates.
			routed.CoarseScore = g.score
			routed.Candidates = g.candidates
			continue
		}
		if shortlisted >= r.topK {
			continue
		}

		m, err := r.registry.Get(id)
		if err != nil {
			// Index entries for unregistered modules are stale config
			// leftovers; skip them.
			r.logger.Warn("index candidate references unknown module", "module", id)
			continue
		}
		if !m.Descriptor().Active {
			continue
		}

		selected[id] = &Routed{Module: m, CoarseScore: g.score, Candidates: g.candidates}
		shortlisted++
	}

	decision := &RouteDecision{}

	if len(selected) == 0 {
		decision.ColdFallback = true
		for _, m := range r.registry.Active() {
			decision.Modules = append(decision.Modules, Routed{
				Module:     m,
				Candidates: map[string]storage.Candidate{},
			})
		}
		return decision, nil
	}

	for _, routed := range selected {
		decision.Modules = append(decision.Modules, *routed)
	}
	sort.Slice(decision.Modules, func(i, j int) bool {
		mi, mj := decision.Modules[i], decision.Modules[j]
		if mi.CoarseScore != mj.CoarseScore {
			return mi.CoarseScore > mj.CoarseScore
		}
		return mi.Module.ID() < mj.Module.ID()
	})

	return decision, nil
}
