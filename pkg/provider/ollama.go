package provider

import (
	"context"
	stderrors "errors"

	"github.com/charmbracelet/log"
	"github.com/ollama/ollama/api"
	"github.com/theapemachine/recall/pkg/errors"
)

var errMissingEmbeddings = stderrors.New("provider returned fewer embeddings than inputs")

type OllamaEmbedder struct {
	api   *api.Client
	Model string
}

type OllamaEmbedderOption func(*OllamaEmbedder)

func NewOllamaEmbedder(options ...OllamaEmbedderOption) *OllamaEmbedder {
	embedder := &OllamaEmbedder{Model: "nomic-embed-text"}

	client, err := api.ClientFromEnvironment()

	if err != nil {
		log.Error("failed to create Ollama client", "error", err)
	} else {
		embedder.api = client
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.api == nil {
		return nil, &errors.EmbeddingError{
			Provider: "ollama",
			Err:      stderrors.New("client not configured"),
		}
	}

	resp, err := e.api.Embed(ctx, &api.EmbedRequest{
		Model: e.Model,
		Input: texts,
	})

	if err != nil {
		return nil, &errors.EmbeddingError{Provider: "ollama", Err: err}
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, &errors.EmbeddingError{
			Provider: "ollama",
			Err:      errMissingEmbeddings,
		}
	}

	return resp.Embeddings, nil
}

func WithOllamaModel(model string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		if model != "" {
			e.Model = model
		}
	}
}

func WithOllamaClient(client *api.Client) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.api = client
	}
}
