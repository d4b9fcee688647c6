// Package embedding provides the gateway through which all text is turned
// into vectors. It produces full-dimensional embeddings for within-module
// similarity search and compresses them into reduced-dimension index
// embeddings for cross-module shortlisting.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Gateway is the single entry point for embedding text. Implementations
// must be safe for concurrent use.
type Gateway interface {
	// Embed returns the full-dimensional embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Compress reduces a full embedding to dims dimensions for the
	// central index. The result is L2-normalized so cosine comparisons
	// between compressed vectors remain meaningful.
	Compress(full []float32, dims int) ([]float32, error)
}

// Compress truncates the leading dims components of a full embedding and
// renormalizes to unit length. Models trained with nested representations
// keep most of their signal in the leading components, which makes plain
// truncation a usable reduction without a projection matrix.
func Compress(full []float32, dims int) ([]float32, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidInput, dims)
	}
	if len(full) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrInvalidInput)
	}
	if dims > len(full) {
		return nil, fmt.Errorf("%w: cannot compress %d dimensions to %d", ErrInvalidInput, len(full), dims)
	}

	out := make([]float32, dims)
	copy(out, full[:dims])

	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero-magnitude embedding", ErrInvalidInput)
	}

	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}

	return out, nil
}
