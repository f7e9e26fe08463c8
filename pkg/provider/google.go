package provider

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/errors"
	"google.golang.org/genai"
)

type GoogleEmbedder struct {
	api   *genai.Client
	Model string
}

type GoogleEmbedderOption func(*GoogleEmbedder)

// NewGoogleEmbedder relies on GOOGLE_API_KEY being picked up by the
// client from the environment.
func NewGoogleEmbedder(options ...GoogleEmbedderOption) *GoogleEmbedder {
	embedder := &GoogleEmbedder{Model: "text-embedding-004"}

	client, err := genai.NewClient(context.Background(), nil)

	if err != nil {
		log.Error("failed to create Google client", "error", err)
	} else {
		embedder.api = client
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *GoogleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *GoogleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))

	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	resp, err := e.api.Models.EmbedContent(ctx, e.Model, contents, nil)

	if err != nil {
		return nil, &errors.EmbeddingError{Provider: "google", Err: err}
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, &errors.EmbeddingError{
			Provider: "google",
			Err:      errMissingEmbeddings,
		}
	}

	out := make([][]float32, len(resp.Embeddings))

	for i, embedding := range resp.Embeddings {
		out[i] = embedding.Values
	}

	return out, nil
}

func WithGoogleModel(model string) GoogleEmbedderOption {
	return func(e *GoogleEmbedder) {
		if model != "" {
			e.Model = model
		}
	}
}

func WithGoogleClient(client *genai.Client) GoogleEmbedderOption {
	return func(e *GoogleEmbedder) {
		e.api = client
	}
}
