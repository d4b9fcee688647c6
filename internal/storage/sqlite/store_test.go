package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMemory(id, ownerID, content string, vec []float32) *types.Memory {
	return &types.Memory{
		ID:            id,
		OwnerID:       ownerID,
		Content:       content,
		FullEmbedding: vec,
	}
}

func TestModuleStoreCRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewModuleStore(db, "notes")

	t.Run("put and get round trip", func(t *testing.T) {
		mem := newMemory("m1", "user-1", "hello", []float32{1, 0, 0})
		mem.Metadata = types.MetadataDoc{"type": "note", "tags": []string{"a", "b"}}
		require.NoError(t, store.Put(ctx, mem))

		got, err := store.Get(ctx, "user-1", "m1")
		require.NoError(t, err)
		assert.Equal(t, "hello", got.Content)
		assert.Equal(t, []float32{1, 0, 0}, got.FullEmbedding)
		assert.Equal(t, "note", got.Type())
		assert.Equal(t, []string{"a", "b"}, got.Metadata.StringList("tags"))
	})

	t.Run("put upserts on same ID", func(t *testing.T) {
		mem := newMemory("m1", "user-1", "updated", []float32{0, 1, 0})
		require.NoError(t, store.Put(ctx, mem))

		got, err := store.Get(ctx, "user-1", "m1")
		require.NoError(t, err)
		assert.Equal(t, "updated", got.Content)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := store.Get(ctx, "user-1", "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("owner isolation", func(t *testing.T) {
		_, err := store.Get(ctx, "user-2", "m1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("module partition isolation", func(t *testing.T) {
		other := NewModuleStore(db, "tasks")
		_, err := other.Get(ctx, "user-1", "m1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("touch access", func(t *testing.T) {
		require.NoError(t, store.TouchAccess(ctx, "user-1", "m1"))

		got, err := store.Get(ctx, "user-1", "m1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.AccessCount)
		require.NotNil(t, got.LastAccessedAt)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "user-1", "m1"))
		_, err := store.Get(ctx, "user-1", "m1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, store.Delete(ctx, "user-1", "m1"), storage.ErrNotFound)
	})

	t.Run("rejects incomplete memories", func(t *testing.T) {
		assert.ErrorIs(t, store.Put(ctx, nil), storage.ErrInvalidInput)
		assert.ErrorIs(t, store.Put(ctx, newMemory("", "user-1", "x", nil)), storage.ErrInvalidInput)
		assert.ErrorIs(t, store.Put(ctx, newMemory("m2", "", "x", nil)), storage.ErrInvalidInput)
		assert.ErrorIs(t, store.Put(ctx, newMemory("m2", "user-1", "", nil)), storage.ErrInvalidInput)
	})
}

func TestModuleStoreSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewModuleStore(db, "notes")

	require.NoError(t, store.Put(ctx, newMemory("exact", "user-1", "exact match", []float32{1, 0})))
	require.NoError(t, store.Put(ctx, newMemory("близко", "user-1", "close match", []float32{0.9, 0.4359})))
	require.NoError(t, store.Put(ctx, newMemory("far", "user-1", "unrelated", []float32{0, 1})))
	require.NoError(t, store.Put(ctx, newMemory("other", "user-2", "someone else", []float32{1, 0})))

	t.Run("ranks by cosine similarity", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, "user-1", []float32{1, 0}, storage.SearchOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "exact", results[0].Memory.ID)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
		assert.Equal(t, "close match", results[1].Memory.Content)
		assert.Equal(t, "far", results[2].Memory.ID)
	})

	t.Run("min score filters", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, "user-1", []float32{1, 0}, storage.SearchOptions{Limit: 10, MinScore: 0.5})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("limit truncates", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, "user-1", []float32{1, 0}, storage.SearchOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("owner scoped", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, "user-2", []float32{1, 0}, storage.SearchOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "other", results[0].Memory.ID)
	})

	t.Run("empty query vector", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, "user-1", nil, storage.SearchOptions{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestCentralIndex(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	index := NewCentralIndex(db)

	entry := func(moduleID, memoryID string, vec []float32, importance float64) *types.IndexEntry {
		return &types.IndexEntry{
			OwnerID:         "user-1",
			ModuleID:        moduleID,
			RemoteMemoryID:  memoryID,
			IndexEmbedding:  vec,
			ImportanceScore: importance,
		}
	}

	t.Run("upsert is idempotent by unique key", func(t *testing.T) {
		require.NoError(t, index.Upsert(ctx, entry("notes", "m1", []float32{1, 0}, 0.9)))
		require.NoError(t, index.Upsert(ctx, entry("notes", "m1", []float32{0, 1}, 0.4)))

		entries, err := index.List(ctx, "notes", storage.ListOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []float32{0, 1}, entries[0].IndexEmbedding)
		assert.Equal(t, 0.4, entries[0].ImportanceScore)
	})

	t.Run("defaults importance", func(t *testing.T) {
		require.NoError(t, index.Upsert(ctx, entry("notes", "m2", []float32{1, 0}, 0)))

		entries, err := index.List(ctx, "notes", storage.ListOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, types.DefaultImportance, entries[1].ImportanceScore)
	})

	t.Run("candidate search is deterministic", func(t *testing.T) {
		require.NoError(t, index.Upsert(ctx, entry("tasks", "m1", []float32{1, 0}, 0.5)))

		first, err := index.CandidateSearch(ctx, "user-1", []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, first, 3)

		// notes/m2 and tasks/m1 tie on similarity 1; module then memory
		// ID breaks the tie.
		assert.Equal(t, "notes", first[0].ModuleID)
		assert.Equal(t, "m2", first[0].RemoteMemoryID)
		assert.Equal(t, "tasks", first[1].ModuleID)
		assert.Equal(t, "notes", first[2].ModuleID)
		assert.Equal(t, "m1", first[2].RemoteMemoryID)

		for i := 0; i < 3; i++ {
			again, err := index.CandidateSearch(ctx, "user-1", []float32{1, 0}, 10)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("topN truncates", func(t *testing.T) {
		candidates, err := index.CandidateSearch(ctx, "user-1", []float32{1, 0}, 1)
		require.NoError(t, err)
		assert.Len(t, candidates, 1)
	})

	t.Run("owner scoped", func(t *testing.T) {
		candidates, err := index.CandidateSearch(ctx, "user-9", []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("touch access", func(t *testing.T) {
		require.NoError(t, index.TouchAccess(ctx, "notes", "m1"))

		entries, err := index.List(ctx, "notes", storage.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, entries[0].AccessCount)
		assert.NotNil(t, entries[0].LastAccessedAt)

		// Touching an absent entry is a no-op.
		assert.NoError(t, index.TouchAccess(ctx, "notes", "missing"))
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, index.Remove(ctx, "notes", "m1"))
		require.NoError(t, index.Remove(ctx, "notes", "m1"))

		entries, err := index.List(ctx, "notes", storage.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestRelationshipStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	rels := NewRelationshipStore(db)

	link := func(src, dst, relType string, strength float64) *types.Relationship {
		return &types.Relationship{
			OwnerID:        "user-1",
			SourceModule:   "notes",
			SourceMemoryID: src,
			TargetModule:   "tasks",
			TargetMemoryID: dst,
			Type:           relType,
			Strength:       strength,
		}
	}

	t.Run("link and query", func(t *testing.T) {
		require.NoError(t, rels.Link(ctx, link("m1", "t1", types.RelReferences, 0.9)))
		require.NoError(t, rels.Link(ctx, link("m1", "t2", types.RelBlocks, 0.4)))

		edges, err := rels.RelatedTo(ctx, "user-1", "notes", "m1", nil)
		require.NoError(t, err)
		require.Len(t, edges, 2)
		assert.Equal(t, "t1", edges[0].TargetMemoryID, "strongest edge first")
	})

	t.Run("type filter", func(t *testing.T) {
		edges, err := rels.RelatedTo(ctx, "user-1", "notes", "m1", []string{types.RelBlocks})
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, "t2", edges[0].TargetMemoryID)
	})

	t.Run("outgoing edges only", func(t *testing.T) {
		edges, err := rels.RelatedTo(ctx, "user-1", "tasks", "t1", nil)
		require.NoError(t, err)
		assert.Empty(t, edges, "relatedTo follows edge direction")
	})

	t.Run("link upserts on the 5-tuple", func(t *testing.T) {
		require.NoError(t, rels.Link(ctx, link("m1", "t1", types.RelReferences, 0.2)))

		edges, err := rels.RelatedTo(ctx, "user-1", "notes", "m1", []string{types.RelReferences})
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, 0.2, edges[0].Strength)
	})

	t.Run("rejects invalid strength", func(t *testing.T) {
		assert.ErrorIs(t, rels.Link(ctx, link("m1", "t3", types.RelRelated, 1.5)), storage.ErrInvalidInput)
		assert.ErrorIs(t, rels.Link(ctx, link("m1", "t3", types.RelRelated, -0.1)), storage.ErrInvalidInput)
	})

	t.Run("remove for deletes both directions", func(t *testing.T) {
		require.NoError(t, rels.Link(ctx, &types.Relationship{
			OwnerID:        "user-1",
			SourceModule:   "tasks",
			SourceMemoryID: "t1",
			TargetModule:   "notes",
			TargetMemoryID: "m1",
			Type:           types.RelRelated,
			Strength:       1,
		}))

		require.NoError(t, rels.RemoveFor(ctx, "notes", "m1"))

		edges, err := rels.RelatedTo(ctx, "user-1", "notes", "m1", nil)
		require.NoError(t, err)
		assert.Empty(t, edges)

		edges, err = rels.RelatedTo(ctx, "user-1", "tasks", "t1", nil)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})
}

func TestVectorSerialization(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		vec := []float32{0.25, -1.5, 3.75}
		data := serializeVector(vec)
		got, err := deserializeVector(data, len(vec))
		require.NoError(t, err)
		assert.Equal(t, vec, got)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := deserializeVector(serializeVector([]float32{1, 2}), 3)
		assert.Error(t, err)
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "dimension mismatch scores zero")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vector scores zero")
}

func TestSimilaritySearchTieBreak(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewModuleStore(db, "notes")

	older := newMemory("older", "user-1", "same vector", []float32{1, 0})
	require.NoError(t, store.Put(ctx, older))
	newer := newMemory("newer", "user-1", "same vector", []float32{1, 0})
	accessed := time.Now()
	newer.LastAccessedAt = &accessed
	require.NoError(t, store.Put(ctx, newer))

	results, err := store.SimilaritySearch(ctx, "user-1", []float32{1, 0}, storage.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].Memory.ID, "recently accessed memory wins the similarity tie")
}
