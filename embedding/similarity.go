package embedding

import (
	"context"
	"fmt"

	"github.com/datar-psa/goanchor/api"
)

// EmbeddingSimilarityOptions configures the EmbeddingSimilarity scorer
type EmbeddingSimilarityOptions struct{}

// EmbeddingSimilarity returns a scorer that measures semantic similarity using embeddings
// It computes cosine similarity between the output and expected text embeddings
// Both texts are embedded in a single Embed call
func EmbeddingSimilarity(embedder api.Embedder, opts EmbeddingSimilarityOptions) api.Scorer {
	return &embeddingSimilarityScorer{opts: opts, embedder: embedder}
}

type embeddingSimilarityScorer struct {
	opts     EmbeddingSimilarityOptions
	embedder api.Embedder
}

func (s *embeddingSimilarityScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "EmbeddingSimilarity",
		Metadata: make(map[string]any),
	}

	if in.Expected == "" {
		result.Error = api.ErrNoExpectedValue
		return result
	}

	if s.embedder == nil {
		result.Error = fmt.Errorf("embedder is required")
		return result
	}

	vectors, err := s.embedder.Embed(ctx, []string{in.Output, in.Expected})
	if err != nil {
		result.Error = fmt.Errorf("failed to embed texts: %w", err)
		return result
	}
	if len(vectors) != 2 {
		result.Error = fmt.Errorf("%w: got %d, want 2", api.ErrUnexpectedEmbeddingCount, len(vectors))
		return result
	}

	similarity, err := CosineSimilarity(vectors[0], vectors[1])
	if err != nil {
		result.Error = err
		return result
	}

	// Map [-1, 1] onto [0, 1]
	result.Score = (similarity + 1.0) / 2.0
	result.Metadata["cosine_similarity"] = similarity
	result.Metadata["embedding_dim"] = len(vectors[0])

	return result
}
