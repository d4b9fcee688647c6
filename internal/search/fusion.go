package search

import (
	"math"
	"time"

	"github.com/scrypster/recall/internal/config"
)

// fuser computes the linear score fusion for result ranking. Weights are
// normalized once at construction so fused scores stay in [0, 1] before
// any relationship boost.
type fuser struct {
	weights  config.FusionWeights
	halfLife time.Duration
	now      func() time.Time
}

func newFuser(weights config.FusionWeights, halfLife time.Duration) *fuser {
	if halfLife <= 0 {
		halfLife = 168 * time.Hour
	}
	return &fuser{
		weights:  weights.Normalized(),
		halfLife: halfLife,
		now:      time.Now,
	}
}

// recencyDecay maps an age to (0, 1]: 1 for just-touched memories, halved
// every halfLife.
func (f *fuser) recencyDecay(lastAccessed *time.Time, createdAt time.Time) float64 {
	ref := createdAt
	if lastAccessed != nil {
		ref = *lastAccessed
	}
	if ref.IsZero() {
		return 0
	}

	age := f.now().Sub(ref)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, age.Seconds()/f.halfLife.Seconds())
}

// fuse combines the score components into the final ranking score.
func (f *fuser) fuse(similarity, importance, recency float64) float64 {
	return f.weights.Similarity*similarity +
		f.weights.Importance*importance +
		f.weights.Recency*recency
}
