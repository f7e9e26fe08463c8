package provider

import (
	"context"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/utils"
)

type OpenAIEmbedder struct {
	api   openai.Client
	Model string
}

type OpenAIEmbedderOption func(*OpenAIEmbedder)

func NewOpenAIEmbedder(options ...OpenAIEmbedderOption) *OpenAIEmbedder {
	embedder := &OpenAIEmbedder{
		api: openai.NewClient(
			option.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		),
		Model: "text-embedding-3-small",
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})

	if err != nil {
		return nil, &errors.EmbeddingError{Provider: "openai", Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, &errors.EmbeddingError{
			Provider: "openai",
			Err:      errMissingEmbeddings,
		}
	}

	out := make([][]float32, len(resp.Data))

	for i, d := range resp.Data {
		out[i] = utils.ConvertToFloat32(d.Embedding)
	}

	return out, nil
}

func WithOpenAIModel(model string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		if model != "" {
			e.Model = model
		}
	}
}

func WithOpenAIClient(client *openai.Client) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.api = *client
	}
}
