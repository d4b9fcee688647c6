package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// serializeVector packs a float32 vector as little-endian bytes for BLOB
// storage.
func serializeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector unpacks a little-endian BLOB into a float32 vector,
// validating against the stored dimension.
func deserializeVector(blob []byte, dimension int) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) != dimension*4 {
		return nil, fmt.Errorf("embedding blob is %d bytes, expected %d for dimension %d", len(blob), dimension*4, dimension)
	}
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched dimensions or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
