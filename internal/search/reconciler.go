package search

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/internal/module"
	"github.com/scrypster/recall/internal/storage"
)

// sweepPageSize is how many index entries one sweep page loads.
const sweepPageSize = 500

// flagKey identifies a possibly stale index entry.
type flagKey struct {
	moduleID string
	memoryID string
}

// Reconciler repairs the central index. The index is a cache of module
// truth, so repair is always safe: an entry is removed only after the
// owning module confirms the memory is gone.
//
// Two repair paths exist. Query-time staleness suspicions are collected
// via Flag and verified by RepairFlagged; Sweep pages through the whole
// index for periodic or operator-driven reconciliation.
type Reconciler struct {
	index    storage.CentralIndex
	registry *module.Registry
	logger   *log.Logger
	metrics  *metrics.Manager

	mu      sync.Mutex
	flagged map[flagKey]string // value is the owner ID
}

// NewReconciler creates a reconciler over the given index and modules.
func NewReconciler(index storage.CentralIndex, registry *module.Registry, logger *log.Logger, m *metrics.Manager) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	if m == nil {
		m = metrics.NewManager(metrics.Config{Enabled: false})
	}
	return &Reconciler{
		index:    index,
		registry: registry,
		logger:   logger,
		metrics:  m,
		flagged:  make(map[flagKey]string),
	}
}

// Flag records a suspicion that the index entry for (moduleID, memoryID)
// points at a deleted memory. Cheap and non-blocking; verification
// happens in RepairFlagged.
func (r *Reconciler) Flag(ownerID, moduleID, memoryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flagged[flagKey{moduleID: moduleID, memoryID: memoryID}] = ownerID
}

// FlaggedCount returns the number of entries awaiting verification.
func (r *Reconciler) FlaggedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flagged)
}

// RepairFlagged verifies every flagged entry against its module and
// removes the ones whose memory no longer exists. Returns the number of
// entries removed. Entries whose module cannot be consulted stay flagged
// for the next run.
func (r *Reconciler) RepairFlagged(ctx context.Context) (int, error) {
	r.mu.Lock()
	pending := r.flagged
	r.flagged = make(map[flagKey]string)
	r.mu.Unlock()

	removed := 0
	for key, ownerID := range pending {
		ok, err := r.repairOne(ctx, ownerID, key.moduleID, key.memoryID)
		if err != nil {
			// Keep it for the next run.
			r.Flag(ownerID, key.moduleID, key.memoryID)
			if ctx.Err() != nil {
				return removed, ctx.Err()
			}
			continue
		}
		if ok {
			removed++
		}
	}

	return removed, nil
}

// Sweep pages through the central index for every registered active
// module and removes entries whose memory is gone. Returns the total
// number of entries removed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	removed := 0

	for _, m := range r.registry.Active() {
		moduleID := m.ID()
		offset := 0

		for {
			entries, err := r.index.List(ctx, moduleID, storage.ListOptions{
				Limit:  sweepPageSize,
				Offset: offset,
			})
			if err != nil {
				return removed, err
			}
			if len(entries) == 0 {
				break
			}

			pageRemoved := 0
			for _, entry := range entries {
				ok, err := r.repairOne(ctx, entry.OwnerID, moduleID, entry.RemoteMemoryID)
				if err != nil {
					if ctx.Err() != nil {
						return removed, ctx.Err()
					}
					continue
				}
				if ok {
					pageRemoved++
				}
			}
			removed += pageRemoved

			if len(entries) < sweepPageSize {
				break
			}
			// Deletions shift subsequent pages; advance only past the
			// surviving entries so none are skipped.
			offset += len(entries) - pageRemoved
		}
	}

	return removed, nil
}

// repairOne checks one entry and removes it when its memory is gone.
// Returns true when the entry was removed.
func (r *Reconciler) repairOne(ctx context.Context, ownerID, moduleID, memoryID string) (bool, error) {
	m, err := r.registry.Get(moduleID)
	if err != nil {
		// No module can ever confirm this entry; drop it.
		if removeErr := r.index.Remove(ctx, moduleID, memoryID); removeErr != nil {
			return false, removeErr
		}
		r.metrics.RecordRepair("removed")
		r.logger.Info("removed index entry for unregistered module",
			"module", moduleID, "memory_id", memoryID)
		return true, nil
	}

	_, err = m.Get(ctx, ownerID, memoryID)
	if err == nil {
		r.metrics.RecordRepair("kept")
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	if err := r.index.Remove(ctx, moduleID, memoryID); err != nil {
		return false, err
	}
	r.metrics.RecordRepair("removed")
	r.logger.Info("removed stale index entry",
		"module", moduleID, "memory_id", memoryID)
	return true, nil
}
