// Command recall is the operational entry point for the federated memory
// store: schema setup, storing and linking memories, federated search,
// and index reconciliation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/internal/module"
	"github.com/scrypster/recall/internal/search"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/postgres"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/pkg/types"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")
	owner      = flag.String("owner", "", "Owner (user) ID for the operation")

	setupCmd     = flag.Bool("setup", false, "Apply the storage schema and exit")
	storeCmd     = flag.Bool("store", false, "Store a new memory")
	searchCmd    = flag.Bool("search", false, "Run a federated search")
	linkCmd      = flag.Bool("link", false, "Link two memories")
	relatedCmd   = flag.Bool("related", false, "List memories related to one memory")
	reconcileCmd = flag.Bool("reconcile", false, "Sweep the central index for stale entries and exit")

	moduleID = flag.String("module", "", "Module ID (for -store, -related)")
	content  = flag.String("content", "", "Memory content (for -store)")
	meta     = flag.String("meta", "", "Memory metadata as a JSON object (for -store)")

	query    = flag.String("query", "", "Query text (for -search)")
	limit    = flag.Int("limit", 10, "Maximum results (for -search)")
	modules  = flag.String("modules", "", "Comma-separated module IDs to always search (for -search)")
	minScore = flag.Float64("min-score", 0, "Minimum similarity for branch hits (for -search)")

	fromRef  = flag.String("from", "", "Source memory as module/memoryID (for -link)")
	toRef    = flag.String("to", "", "Target memory as module/memoryID (for -link)")
	relType  = flag.String("type", types.RelRelated, "Relationship type (for -link)")
	strength = flag.Float64("strength", 1.0, "Relationship strength 0..1 (for -link)")
	memoryID = flag.String("id", "", "Memory ID (for -related)")
	relTypes = flag.String("types", "", "Comma-separated relationship type filter (for -related)")
)

func main() {
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "recall"})

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", "err", err)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", "err", err)
	}
	defer app.Close()

	ctx := context.Background()

	switch {
	case *setupCmd:
		// Opening the backend already applied the schema.
		logger.Info("storage schema applied", "engine", cfg.Storage.Engine)
	case *storeCmd:
		err = app.handleStore(ctx)
	case *searchCmd:
		err = app.handleSearch(ctx)
	case *linkCmd:
		err = app.handleLink(ctx)
	case *relatedCmd:
		err = app.handleRelated(ctx)
	case *reconcileCmd:
		err = app.handleReconcile(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal("command failed", "err", err)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadConfigFromFile(*configPath)
	}
	return config.LoadConfig()
}

// app holds the wired application graph for one invocation.
type app struct {
	cfg        *config.Config
	logger     *log.Logger
	metrics    *metrics.Manager
	index      storage.CentralIndex
	rels       storage.RelationshipStore
	registry   *module.Registry
	reconciler *search.Reconciler
	orch       *search.Orchestrator
	closeFn    func() error
}

func newApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	m := metrics.NewManager(metrics.DefaultConfig())

	var (
		index       storage.CentralIndex
		rels        storage.RelationshipStore
		moduleStore func(moduleID string) storage.ModuleStore
		closeFn     func() error
	)

	switch cfg.Storage.Engine {
	case "postgres":
		db, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		index = postgres.NewCentralIndex(db)
		rels = postgres.NewRelationshipStore(db)
		moduleStore = func(id string) storage.ModuleStore { return postgres.NewModuleStore(db, id) }
		closeFn = db.Close
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		db, err := sqlite.Open(filepath.Join(cfg.Storage.DataPath, "recall.db"))
		if err != nil {
			return nil, err
		}
		index = sqlite.NewCentralIndex(db)
		rels = sqlite.NewRelationshipStore(db)
		moduleStore = func(id string) storage.ModuleStore { return sqlite.NewModuleStore(db, id) }
		closeFn = db.Close
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}

	gateway := embedding.NewClient(embedding.ClientConfig{
		BaseURL:           cfg.Embedding.ProviderURL,
		Model:             cfg.Embedding.Model,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		MaxRetries:        uint64(cfg.Embedding.MaxRetries),
	})

	descriptors := cfg.Modules
	if len(descriptors) == 0 {
		descriptors = []types.ModuleDescriptor{
			{ModuleID: "notes", DisplayName: "Notes", Active: true},
		}
	}

	mods := make([]module.Module, 0, len(descriptors))
	for _, desc := range descriptors {
		mod, err := module.NewGeneric(module.GenericConfig{
			Descriptor:      desc,
			Store:           moduleStore(desc.ModuleID),
			Index:           index,
			Relationships:   rels,
			Gateway:         gateway,
			IndexDimensions: cfg.Embedding.IndexDimensions,
			Logger:          logger,
			Metrics:         m,
		})
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}

	registry, err := module.NewRegistry(mods...)
	if err != nil {
		return nil, err
	}

	reconciler := search.NewReconciler(index, registry, logger, m)

	orch, err := search.NewOrchestrator(search.OrchestratorConfig{
		Registry:      registry,
		Index:         index,
		Relationships: rels,
		Gateway:       gateway,
		Reconciler:    reconciler,
		Search:        cfg.Search,
		IndexDims:     cfg.Embedding.IndexDimensions,
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		index:      index,
		rels:       rels,
		registry:   registry,
		reconciler: reconciler,
		orch:       orch,
		closeFn:    closeFn,
	}, nil
}

func (a *app) Close() {
	if a.closeFn != nil {
		if err := a.closeFn(); err != nil {
			a.logger.Warn("failed to close storage", "err", err)
		}
	}
}

func (a *app) handleStore(ctx context.Context) error {
	if *owner == "" || *moduleID == "" || *content == "" {
		return fmt.Errorf("-store requires -owner, -module and -content")
	}

	var metadata types.MetadataDoc
	if *meta != "" {
		if err := json.Unmarshal([]byte(*meta), &metadata); err != nil {
			return fmt.Errorf("parse -meta: %w", err)
		}
	}

	mod, err := a.registry.Get(*moduleID)
	if err != nil {
		return err
	}

	result, err := mod.Store(ctx, *owner, *content, metadata)
	if err != nil {
		return err
	}
	if result.IndexWarning != "" {
		a.logger.Warn(result.IndexWarning, "memory_id", result.MemoryID)
	}

	return printJSON(map[string]string{
		"module_id": *moduleID,
		"memory_id": result.MemoryID,
	})
}

func (a *app) handleSearch(ctx context.Context) error {
	if *owner == "" || *query == "" {
		return fmt.Errorf("-search requires -owner and -query")
	}

	result, err := a.orch.FederatedSearch(ctx, *owner, *query, search.Options{
		Limit:    *limit,
		Modules:  splitList(*modules),
		MinScore: *minScore,
	})
	if err != nil {
		return err
	}

	for _, failure := range result.FailedModules {
		a.logger.Warn("module did not complete",
			"module", failure.ModuleID, "timeout", failure.TimedOut, "err", failure.Err)
	}

	type hit struct {
		ModuleID   string  `json:"module_id"`
		MemoryID   string  `json:"memory_id"`
		Content    string  `json:"content"`
		Similarity float64 `json:"similarity"`
		Importance float64 `json:"importance"`
		Recency    float64 `json:"recency"`
		FusedScore float64 `json:"fused_score"`
	}
	hits := make([]hit, 0, len(result.Items))
	for _, item := range result.Items {
		hits = append(hits, hit{
			ModuleID:   item.ModuleID,
			MemoryID:   item.Memory.ID,
			Content:    item.Memory.Content,
			Similarity: item.Similarity,
			Importance: item.Importance,
			Recency:    item.Recency,
			FusedScore: item.FusedScore,
		})
	}

	failed := make([]string, 0, len(result.FailedModules))
	for _, failure := range result.FailedModules {
		failed = append(failed, failure.ModuleID)
	}

	return printJSON(map[string]interface{}{
		"items":          hits,
		"failed_modules": failed,
		"cold_fallback":  result.ColdFallback,
	})
}

func (a *app) handleLink(ctx context.Context) error {
	if *owner == "" || *fromRef == "" || *toRef == "" {
		return fmt.Errorf("-link requires -owner, -from and -to")
	}

	source, err := parseRef(*fromRef)
	if err != nil {
		return err
	}
	target, err := parseRef(*toRef)
	if err != nil {
		return err
	}

	rel := &types.Relationship{
		OwnerID:        *owner,
		SourceModule:   source.Module,
		SourceMemoryID: source.MemoryID,
		TargetModule:   target.Module,
		TargetMemoryID: target.MemoryID,
		Type:           *relType,
		Strength:       *strength,
	}
	if err := a.rels.Link(ctx, rel); err != nil {
		return err
	}

	return printJSON(map[string]string{"relationship_id": rel.ID})
}

func (a *app) handleRelated(ctx context.Context) error {
	if *owner == "" || *moduleID == "" || *memoryID == "" {
		return fmt.Errorf("-related requires -owner, -module and -id")
	}

	edges, err := a.rels.RelatedTo(ctx, *owner, *moduleID, *memoryID, splitList(*relTypes))
	if err != nil {
		return err
	}

	return printJSON(edges)
}

func (a *app) handleReconcile(ctx context.Context) error {
	removed, err := a.reconciler.Sweep(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("reconciliation sweep complete", "removed", removed)
	return nil
}

// parseRef parses a "module/memoryID" reference.
func parseRef(ref string) (types.MemoryRef, error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return types.MemoryRef{}, fmt.Errorf("invalid memory reference %q, want module/memoryID", ref)
	}
	return types.MemoryRef{Module: parts[0], MemoryID: parts[1]}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
