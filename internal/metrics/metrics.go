// Package metrics provides Prometheus metrics instrumentation for Recall.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for Recall.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Federated search metrics
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	branchDuration *prometheus.HistogramVec
	branchFailures *prometheus.CounterVec
	modulesQueried prometheus.Histogram

	// Central index metrics
	indexOps    *prometheus.CounterVec
	staleDrops  prometheus.Counter
	indexRepair *prometheus.CounterVec

	// Embedding metrics
	embedCalls    *prometheus.CounterVec
	embedDuration prometheus.Histogram
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool

	SearchDurationBuckets []float64
	BranchDurationBuckets []float64
	EmbedDurationBuckets  []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		SearchDurationBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		BranchDurationBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		EmbedDurationBuckets:  []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}
}

// NewManager creates a new metrics manager. A disabled manager is a valid
// no-op sink so callers never need nil checks.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Subsystem: "search",
		Name:      "total",
		Help:      "Federated searches by outcome (ok, partial, error).",
	}, []string{"outcome"})

	m.searchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recall",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "End-to-end federated search duration.",
		Buckets:   cfg.SearchDurationBuckets,
	})

	m.branchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recall",
		Subsystem: "search",
		Name:      "branch_duration_seconds",
		Help:      "Per-module search branch duration.",
		Buckets:   cfg.BranchDurationBuckets,
	}, []string{"module"})

	m.branchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Subsystem: "search",
		Name:      "branch_failures_total",
		Help:      "Per-module search branch failures by kind (error, timeout).",
	}, []string{"module", "kind"})

	m.modulesQueried = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recall",
		Subsystem: "search",
		Name:      "modules_queried",
		Help:      "Number of modules fanned out to per search.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13},
	})

	m.indexOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Subsystem: "index",
		Name:      "ops_total",
		Help:      "Central index operations by op (upsert, remove) and status (ok, error).",
	}, []string{"op", "status"})

	m.staleDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recall",
		Subsystem: "index",
		Name:      "stale_drops_total",
		Help:      "Index candidates dropped at query time because the memory was gone.",
	})

	m.indexRepair = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Subsystem: "index",
		Name:      "repairs_total",
		Help:      "Reconciler repairs by action (removed, kept).",
	}, []string{"action"})

	m.embedCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Subsystem: "embedding",
		Name:      "calls_total",
		Help:      "Embedding gateway calls by status (ok, error).",
	}, []string{"status"})

	m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recall",
		Subsystem: "embedding",
		Name:      "duration_seconds",
		Help:      "Embedding gateway call duration.",
		Buckets:   cfg.EmbedDurationBuckets,
	})

	registry.MustRegister(
		m.searches,
		m.searchDuration,
		m.branchDuration,
		m.branchFailures,
		m.modulesQueried,
		m.indexOps,
		m.staleDrops,
		m.indexRepair,
		m.embedCalls,
		m.embedDuration,
	)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSearch records one federated search with its outcome and duration.
func (m *Manager) RecordSearch(outcome string, duration time.Duration, modulesQueried int) {
	if !m.enabled {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(duration.Seconds())
	m.modulesQueried.Observe(float64(modulesQueried))
}

// RecordBranch records one per-module search branch.
func (m *Manager) RecordBranch(module string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.branchDuration.WithLabelValues(module).Observe(duration.Seconds())
}

// RecordBranchFailure records a failed branch. Kind is "error" or "timeout".
func (m *Manager) RecordBranchFailure(module, kind string) {
	if !m.enabled {
		return
	}
	m.branchFailures.WithLabelValues(module, kind).Inc()
}

// RecordIndexOp records a central index operation.
func (m *Manager) RecordIndexOp(op, status string) {
	if !m.enabled {
		return
	}
	m.indexOps.WithLabelValues(op, status).Inc()
}

// RecordStaleDrop records a stale index candidate filtered from results.
func (m *Manager) RecordStaleDrop() {
	if !m.enabled {
		return
	}
	m.staleDrops.Inc()
}

// RecordRepair records a reconciler decision for one index entry.
func (m *Manager) RecordRepair(action string) {
	if !m.enabled {
		return
	}
	m.indexRepair.WithLabelValues(action).Inc()
}

// RecordEmbed records an embedding gateway call.
func (m *Manager) RecordEmbed(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.embedCalls.WithLabelValues(status).Inc()
	m.embedDuration.Observe(duration.Seconds())
}
