package provider

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder produces deterministic embeddings without calling any
// external service. The same text always yields the same unit-length
// vector, which is all the engine tests need.
type MockEmbedder struct {
	Dim int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dim: 4}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vector := make([]float32, e.Dim)
	var norm float64

	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>16)%1000) / 1000
		vector[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))

		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for i, text := range texts {
		vector, err := e.Embed(ctx, text)

		if err != nil {
			return nil, err
		}

		out[i] = vector
	}

	return out, nil
}
