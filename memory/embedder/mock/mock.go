// Package mock provides a deterministic embedder for tests and offline
// development.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/theRealMarkCastillo/whisperengine/memory"
)

// Embedder generates deterministic embeddings from a text hash. The
// vector space participates in the hash, so the same text embeds to
// different (but stable) vectors per space, reproducible across runs
// and processes.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with all-MiniLM-L6-v2 dimensions.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// Embed creates a deterministic embedding for (text, space).
func (m *Embedder) Embed(ctx context.Context, text string, space memory.Space) ([]float32, error) {
	if !space.Valid() {
		space = memory.SpaceContent
	}

	h := fnv.New64a()
	h.Write([]byte(string(space)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// LCG over the hash seed: stable pseudo-random values in [-1, 1].
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize converts the embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
