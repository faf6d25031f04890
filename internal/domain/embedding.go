package domain

import (
	"context"
	"math"
	"strings"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and its provenance.
// Fallback is true when the vector came from the deterministic
// pseudo-embedding rather than the remote service; downstream confidence
// scoring dampens on it, but it is never exposed in API responses.
type EmbeddingResult struct {
	Vector   []float32
	Model    string
	Fallback bool
}

// fallbackScatter is how many vector positions each token contributes to.
const fallbackScatter = 5

// FallbackVector computes the deterministic pseudo-embedding used when the
// remote embedding service is unreachable. Same text always yields the same
// vector, so retrieval stays testable with the service down. Quality is
// intentionally poor; this is a last resort.
func FallbackVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	if dim == 0 {
		return vec
	}

	tokenIndex := 0
	for _, tok := range strings.Fields(text) {
		if len(tok) <= 3 {
			continue
		}
		seed := int(tok[0]) + int(tok[len(tok)-1])
		for k := 0; k < fallbackScatter; k++ {
			pos := (tokenIndex*fallbackScatter + k) % dim
			vec[pos] += float32((seed*(k+1))%101) / 101.0
		}
		tokenIndex++
	}

	return normalize(vec)
}

// normalize scales vec to unit L2 norm. A zero vector is returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
