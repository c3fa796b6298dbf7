package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/datar-psa/goanchor/api"
)

const providerName = "gemini"

// EmbedderOptions configures the Gemini embedder
type EmbedderOptions struct {
	// TaskType is passed to the embedding API, e.g. "SEMANTIC_SIMILARITY" (optional)
	TaskType string
	// OutputDimensionality truncates the returned vectors when > 0 (optional)
	OutputDimensionality int32
}

// Embedder wraps a genai.Client to implement the Embedder interface
type Embedder struct {
	client    *genai.Client
	modelName string
	opts      EmbedderOptions
}

// NewEmbedder creates a new Gemini embedder
// client: genai.Client from google.golang.org/genai
// modelName: the embedding model to use (e.g., "text-embedding-005")
func NewEmbedder(client *genai.Client, modelName string, opts EmbedderOptions) *Embedder {
	return &Embedder{
		client:    client,
		modelName: modelName,
		opts:      opts,
	}
}

// Model returns the embedding model name
func (e *Embedder) Model() string {
	return e.modelName
}

// Embed implements Embedder.Embed
// All texts are sent in a single EmbedContent request, one content per text
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]api.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.client == nil {
		return nil, &api.ProviderError{Provider: providerName, Message: "genai client is required"}
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{
				{Text: text},
			},
		}
	}

	config := &genai.EmbedContentConfig{TaskType: e.opts.TaskType}
	if e.opts.OutputDimensionality > 0 {
		dim := e.opts.OutputDimensionality
		config.OutputDimensionality = &dim
	}

	result, err := e.client.Models.EmbedContent(ctx, e.modelName, contents, config)
	if err != nil {
		return nil, providerError(err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", api.ErrUnexpectedEmbeddingCount, len(result.Embeddings), len(texts))
	}

	vectors := make([]api.Vector, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, &api.ProviderError{Provider: providerName, Message: fmt.Sprintf("empty embedding vector at index %d", i)}
		}

		// Convert []float32 to []float64
		vec := make(api.Vector, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

func providerError(err error) *api.ProviderError {
	pe := &api.ProviderError{Provider: providerName, Message: err.Error(), Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe.Status = apiErr.Code
		if apiErr.Message != "" {
			pe.Message = apiErr.Message
		}
	}
	return pe
}

// Verify that Embedder implements api.Embedder
var _ api.Embedder = (*Embedder)(nil)
