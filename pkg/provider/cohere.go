package provider

import (
	"context"
	"os"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/utils"
)

type CohereEmbedder struct {
	api   *cohereclient.Client
	Model string
}

type CohereEmbedderOption func(*CohereEmbedder)

func NewCohereEmbedder(options ...CohereEmbedderOption) *CohereEmbedder {
	embedder := &CohereEmbedder{
		api: cohereclient.NewClient(
			cohereclient.WithToken(os.Getenv("COHERE_API_KEY")),
		),
		Model: "embed-english-v3.0",
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.Model

	resp, err := e.api.Embed(ctx, &cohere.EmbedRequest{
		Model: &model,
		Texts: texts,
	})

	if err != nil {
		return nil, &errors.EmbeddingError{Provider: "cohere", Err: err}
	}

	embeddings := resp.GetEmbeddingsFloats().Embeddings

	if len(embeddings) != len(texts) {
		return nil, &errors.EmbeddingError{
			Provider: "cohere",
			Err:      errMissingEmbeddings,
		}
	}

	out := make([][]float32, len(embeddings))

	for i, embedding := range embeddings {
		out[i] = utils.ConvertToFloat32(embedding)
	}

	return out, nil
}

func WithCohereModel(model string) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		if model != "" {
			e.Model = model
		}
	}
}

func WithCohereClient(client *cohereclient.Client) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.api = client
	}
}
