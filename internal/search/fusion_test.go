package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/recall/internal/config"
)

func TestRecencyDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFuser(config.DefaultFusionWeights(), 24*time.Hour)
	f.now = func() time.Time { return now }

	t.Run("fresh memory scores one", func(t *testing.T) {
		assert.InDelta(t, 1.0, f.recencyDecay(nil, now), 1e-9)
	})

	t.Run("half life halves the score", func(t *testing.T) {
		created := now.Add(-24 * time.Hour)
		assert.InDelta(t, 0.5, f.recencyDecay(nil, created), 1e-9)

		created = now.Add(-48 * time.Hour)
		assert.InDelta(t, 0.25, f.recencyDecay(nil, created), 1e-9)
	})

	t.Run("last access wins over creation", func(t *testing.T) {
		created := now.Add(-96 * time.Hour)
		accessed := now.Add(-24 * time.Hour)
		assert.InDelta(t, 0.5, f.recencyDecay(&accessed, created), 1e-9)
	})

	t.Run("zero time scores zero", func(t *testing.T) {
		assert.Zero(t, f.recencyDecay(nil, time.Time{}))
	})
}

func TestFuse(t *testing.T) {
	f := newFuser(config.DefaultFusionWeights(), 24*time.Hour)

	t.Run("weighted combination", func(t *testing.T) {
		got := f.fuse(1, 1, 1)
		assert.InDelta(t, 1.0, got, 1e-9)

		got = f.fuse(0.5, 0.5, 0.5)
		assert.InDelta(t, 0.5, got, 1e-9)
	})

	t.Run("monotone in importance", func(t *testing.T) {
		low := f.fuse(0.8, 0.2, 0.5)
		high := f.fuse(0.8, 0.9, 0.5)
		assert.Greater(t, high, low)
	})

	t.Run("monotone in similarity", func(t *testing.T) {
		assert.Greater(t, f.fuse(0.9, 0.5, 0.5), f.fuse(0.3, 0.5, 0.5))
	})

	t.Run("unnormalized weights are scaled", func(t *testing.T) {
		f := newFuser(config.FusionWeights{Similarity: 6, Importance: 2.5, Recency: 1.5}, 24*time.Hour)
		assert.InDelta(t, 1.0, f.fuse(1, 1, 1), 1e-9)
	})
}
