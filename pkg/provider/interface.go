// Package provider wraps the embedding backends the memory service can
// use to turn text into dense vectors. All engines depend only on the
// Embedder interface; the concrete backend is selected by config.
package provider

import (
	"context"
	"fmt"
)

// Embedder represents a service capable of generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// New returns the embedder for the given backend name. The model is
// backend-specific; an empty model selects the backend default.
func New(backend, model string) (Embedder, error) {
	switch backend {
	case "openai", "":
		return NewOpenAIEmbedder(WithOpenAIModel(model)), nil
	case "ollama":
		return NewOllamaEmbedder(WithOllamaModel(model)), nil
	case "cohere":
		return NewCohereEmbedder(WithCohereModel(model)), nil
	case "google", "gemini":
		return NewGoogleEmbedder(WithGoogleModel(model)), nil
	case "mock":
		return NewMockEmbedder(), nil
	}

	return nil, fmt.Errorf("unknown embedding backend: %s", backend)
}
