package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/module"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/pkg/types"
)

// stubModule satisfies module.Module for routing tests; only ID and
// Descriptor matter here.
type stubModule struct {
	id     string
	active bool
	search func(ctx context.Context, ownerID string, queryVec []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error)
	get    func(ctx context.Context, ownerID, memoryID string) (*types.Memory, error)
}

func (s *stubModule) ID() string { return s.id }
func (s *stubModule) Descriptor() types.ModuleDescriptor {
	return types.ModuleDescriptor{ModuleID: s.id, Active: s.active}
}
func (s *stubModule) Store(context.Context, string, string, types.MetadataDoc) (*module.StoreResult, error) {
	return nil, nil
}
func (s *stubModule) Get(ctx context.Context, ownerID, memoryID string) (*types.Memory, error) {
	if s.get != nil {
		return s.get(ctx, ownerID, memoryID)
	}
	return nil, storage.ErrNotFound
}
func (s *stubModule) Update(context.Context, string, string, string, types.MetadataDoc) (*module.StoreResult, error) {
	return nil, nil
}
func (s *stubModule) Delete(context.Context, string, string) error { return nil }
func (s *stubModule) TouchAccess(context.Context, string, string) error {
	return nil
}
func (s *stubModule) Search(ctx context.Context, ownerID string, queryVec []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	if s.search != nil {
		return s.search(ctx, ownerID, queryVec, opts)
	}
	return nil, nil
}

func seedIndex(t *testing.T, index storage.CentralIndex, moduleID, memoryID string, vec []float32) {
	t.Helper()
	require.NoError(t, index.Upsert(context.Background(), &types.IndexEntry{
		OwnerID:        "user-1",
		ModuleID:       moduleID,
		RemoteMemoryID: memoryID,
		IndexEmbedding: vec,
	}))
}

func TestSelectModules(t *testing.T) {
	ctx := context.Background()

	newEnv := func(t *testing.T, modules ...module.Module) (*Router, storage.CentralIndex) {
		t.Helper()
		db, err := sqlite.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		registry, err := module.NewRegistry(modules...)
		require.NoError(t, err)

		index := sqlite.NewCentralIndex(db)
		return NewRouter(index, registry, 2, 50, nil), index
	}

	t.Run("ranks modules by best coarse score", func(t *testing.T) {
		router, index := newEnv(t,
			&stubModule{id: "notes", active: true},
			&stubModule{id: "tasks", active: true},
			&stubModule{id: "people", active: true},
		)

		// notes holds the closest entry, tasks a weaker one, people the
		// weakest; topK of 2 must pick notes and tasks.
		seedIndex(t, index, "notes", "m1", []float32{1, 0})
		seedIndex(t, index, "tasks", "m2", []float32{0.7, 0.7})
		seedIndex(t, index, "people", "m3", []float32{0, 1})

		decision, err := router.SelectModules(ctx, "user-1", []float32{1, 0}, nil)
		require.NoError(t, err)
		require.Len(t, decision.Modules, 2)
		assert.False(t, decision.ColdFallback)
		assert.Equal(t, "notes", decision.Modules[0].Module.ID())
		assert.Equal(t, "tasks", decision.Modules[1].Module.ID())
		assert.Contains(t, decision.Modules[0].Candidates, "m1")
	})

	t.Run("explicit modules are always included", func(t *testing.T) {
		router, index := newEnv(t,
			&stubModule{id: "notes", active: true},
			&stubModule{id: "archive", active: true},
		)
		seedIndex(t, index, "notes", "m1", []float32{1, 0})

		decision, err := router.SelectModules(ctx, "user-1", []float32{1, 0}, []string{"archive"})
		require.NoError(t, err)

		ids := make([]string, 0, len(decision.Modules))
		for _, rt := range decision.Modules {
			ids = append(ids, rt.Module.ID())
		}
		assert.ElementsMatch(t, []string{"notes", "archive"}, ids)
	})

	t.Run("unknown explicit module is an error", func(t *testing.T) {
		router, _ := newEnv(t, &stubModule{id: "notes", active: true})

		_, err := router.SelectModules(ctx, "user-1", []float32{1, 0}, []string{"ghosts"})
		assert.ErrorIs(t, err, module.ErrUnknownModule)
	})

	t.Run("cold index falls back to all active modules", func(t *testing.T) {
		router, _ := newEnv(t,
			&stubModule{id: "notes", active: true},
			&stubModule{id: "tasks", active: true},
			&stubModule{id: "archive", active: false},
		)

		decision, err := router.SelectModules(ctx, "user-1", []float32{1, 0}, nil)
		require.NoError(t, err)
		assert.True(t, decision.ColdFallback)
		require.Len(t, decision.Modules, 2)
		assert.Equal(t, "notes", decision.Modules[0].Module.ID())
		assert.Equal(t, "tasks", decision.Modules[1].Module.ID())
	})

	t.Run("skips candidates of unregistered modules", func(t *testing.T) {
		router, index := newEnv(t, &stubModule{id: "notes", active: true})
		seedIndex(t, index, "notes", "m1", []float32{1, 0})
		seedIndex(t, index, "retired", "m2", []float32{1, 0})

		decision, err := router.SelectModules(ctx, "user-1", []float32{1, 0}, nil)
		require.NoError(t, err)
		require.Len(t, decision.Modules, 1)
		assert.Equal(t, "notes", decision.Modules[0].Module.ID())
	})

	t.Run("owner isolation", func(t *testing.T) {
		router, index := newEnv(t, &stubModule{id: "notes", active: true})

		require.NoError(t, index.Upsert(ctx, &types.IndexEntry{
			OwnerID:        "user-2",
			ModuleID:       "notes",
			RemoteMemoryID: "m1",
			IndexEmbedding: []float32{1, 0},
		}))

		decision, err := router.SelectModules(ctx, "user-1", []float32{1, 0}, nil)
		require.NoError(t, err)
		// Nothing shortlisted for user-1, so this is a cold fallback with
		// no candidate leakage from user-2.
		assert.True(t, decision.ColdFallback)
		for _, rt := range decision.Modules {
			assert.Empty(t, rt.Candidates)
		}
	})
}
