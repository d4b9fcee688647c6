package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// stubModule is a minimal Module for registry tests.
type stubModule struct {
	id     string
	active bool
}

func (s *stubModule) ID() string { return s.id }
func (s *stubModule) Descriptor() types.ModuleDescriptor {
	return types.ModuleDescriptor{ModuleID: s.id, Active: s.active}
}
func (s *stubModule) Store(context.Context, string, string, types.MetadataDoc) (*StoreResult, error) {
	return nil, nil
}
func (s *stubModule) Get(context.Context, string, string) (*types.Memory, error) {
	return nil, storage.ErrNotFound
}
func (s *stubModule) Update(context.Context, string, string, string, types.MetadataDoc) (*StoreResult, error) {
	return nil, nil
}
func (s *stubModule) Delete(context.Context, string, string) error { return nil }
func (s *stubModule) TouchAccess(context.Context, string, string) error {
	return nil
}
func (s *stubModule) Search(context.Context, string, []float32, storage.SearchOptions) ([]storage.ScoredMemory, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		reg, err := NewRegistry(&stubModule{id: "notes", active: true}, &stubModule{id: "tasks", active: true})
		require.NoError(t, err)
		assert.Equal(t, 2, reg.Len())

		m, err := reg.Get("notes")
		require.NoError(t, err)
		assert.Equal(t, "notes", m.ID())

		_, err = reg.Get("ghosts")
		assert.ErrorIs(t, err, ErrUnknownModule)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := NewRegistry(&stubModule{id: "notes"}, &stubModule{id: "notes"})
		assert.ErrorContains(t, err, "duplicate module ID")
	})

	t.Run("rejects empty ID", func(t *testing.T) {
		_, err := NewRegistry(&stubModule{id: ""})
		assert.Error(t, err)
	})

	t.Run("active is sorted and filtered", func(t *testing.T) {
		reg, err := NewRegistry(
			&stubModule{id: "tasks", active: true},
			&stubModule{id: "archive", active: false},
			&stubModule{id: "notes", active: true},
		)
		require.NoError(t, err)

		active := reg.Active()
		require.Len(t, active, 2)
		assert.Equal(t, "notes", active[0].ID())
		assert.Equal(t, "tasks", active[1].ID())
	})
}
