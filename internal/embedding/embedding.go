// Package embedding wraps the OpenAI embeddings API behind a narrow
// interface, grounded on src/cache/semantic_cache.go's embed call, so the
// semantic cache and the MoME router's semantic/graph experts share one
// embedding client instead of each opening their own.
package embedding

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

const defaultModel = openai.AdaEmbeddingV2

// Embedder turns free text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder implements Embedder over an OpenAI-compatible client.
type OpenAIEmbedder struct {
	Client *openai.Client
	Model  openai.EmbeddingModel
}

// New wraps client with the default embedding model.
func New(client *openai.Client) *OpenAIEmbedder {
	return &OpenAIEmbedder{Client: client, Model: defaultModel}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	model := e.Model
	if model == "" {
		model = defaultModel
	}
	resp, err := e.Client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}
