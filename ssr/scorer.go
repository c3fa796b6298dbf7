// Package ssr turns free-text answers into rating distributions by semantic
// similarity to the anchor statements of a question type.
package ssr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/datar-psa/goanchor/anchors"
	"github.com/datar-psa/goanchor/api"
	"github.com/datar-psa/goanchor/embedding"
)

const (
	// DefaultTemperature is the softmax temperature used when Options.Temperature is zero
	DefaultTemperature = 0.05
	// DefaultEpsilon is the probability floor used when Options.Epsilon is nil
	DefaultEpsilon = 0.01
)

var errNoEmbedder = errors.New("embedder is required")

// Options configures a Scorer
type Options struct {
	// Temperature controls how sharply similarity differences are amplified (default 0.05)
	Temperature float64
	// Epsilon is added to every exponentiated similarity before normalizing.
	// Nil means DefaultEpsilon; zero disables the floor.
	Epsilon *float64
	// Logger receives debug output; defaults to slog.Default()
	Logger *slog.Logger
}

type anchorKey struct {
	questionType string
	setIndex     int
}

// Scorer rates answers against the anchor sets of a Catalog.
// Anchor embeddings are cached per (question type, anchor set index) for the
// lifetime of the Scorer; answer embeddings are never cached here.
type Scorer struct {
	embedder    api.Embedder
	catalog     *anchors.Catalog
	temperature float64
	epsilon     float64
	logger      *slog.Logger

	mu    sync.Mutex
	cache map[anchorKey][]api.Vector
}

// NewScorer creates a Scorer.
// A nil catalog means anchors.Default().
func NewScorer(embedder api.Embedder, catalog *anchors.Catalog, opts Options) *Scorer {
	if catalog == nil {
		catalog = anchors.Default()
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	epsilon := DefaultEpsilon
	if opts.Epsilon != nil {
		epsilon = *opts.Epsilon
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scorer{
		embedder:    embedder,
		catalog:     catalog,
		temperature: temperature,
		epsilon:     epsilon,
		logger:      logger,
		cache:       make(map[anchorKey][]api.Vector),
	}
}

// Catalog returns the catalog the Scorer rates against
func (s *Scorer) Catalog() *anchors.Catalog {
	return s.catalog
}

// ScoreAnswer rates answer against every anchor set registered for questionType.
//
// The answer is embedded once per call. Each anchor set not yet cached costs one
// additional Embed call with its five statements. Errors from the embedder are
// returned as is.
func (s *Scorer) ScoreAnswer(ctx context.Context, questionType, answer string) (api.ScoreResult, error) {
	var result api.ScoreResult

	sets, err := s.catalog.AnchorSets(questionType)
	if err != nil {
		return result, err
	}
	if s.embedder == nil {
		return result, errNoEmbedder
	}

	answerVecs, err := s.embedder.Embed(ctx, []string{answer})
	if err != nil {
		return result, err
	}
	if len(answerVecs) != 1 {
		return result, fmt.Errorf("%w: got %d for the answer, want 1", api.ErrUnexpectedEmbeddingCount, len(answerVecs))
	}
	answerVec := answerVecs[0]

	dists := make([]api.Distribution, 0, len(sets))
	for i, set := range sets {
		levelVecs, err := s.anchorEmbeddings(ctx, questionType, i, set)
		if err != nil {
			return result, err
		}

		var sims [api.NumLevels]float64
		for l, levelVec := range levelVecs {
			sims[l], err = embedding.CosineSimilarity(answerVec, levelVec)
			if err != nil {
				return result, fmt.Errorf("question type %q anchor set %d level %d: %w", questionType, i, l+1, err)
			}
		}

		dist, err := embedding.SimilarityToDistribution(sims, s.temperature, s.epsilon)
		if err != nil {
			return result, err
		}
		dists = append(dists, dist)
	}

	avg, err := embedding.Average(dists)
	if err != nil {
		return result, err
	}

	result.Distribution = avg
	result.ExpectedScore = embedding.ExpectedScore(avg)
	result.Entropy = embedding.Entropy(avg)
	result.AnchorSetCount = len(dists)
	result.SetDistributions = dists
	return result, nil
}

// anchorEmbeddings returns the level vectors of one anchor set, embedding them on a cache miss
func (s *Scorer) anchorEmbeddings(ctx context.Context, questionType string, index int, set anchors.AnchorSet) ([]api.Vector, error) {
	key := anchorKey{questionType: questionType, setIndex: index}

	s.mu.Lock()
	vecs, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return vecs, nil
	}

	vecs, err := s.embedder.Embed(ctx, set.Statements())
	if err != nil {
		return nil, err
	}
	if len(vecs) != api.NumLevels {
		return nil, fmt.Errorf("%w: got %d for question type %q anchor set %d, want %d", api.ErrUnexpectedEmbeddingCount, len(vecs), questionType, index, api.NumLevels)
	}

	s.mu.Lock()
	s.cache[key] = vecs
	s.mu.Unlock()

	s.logger.Debug("cached anchor embeddings", "question_type", questionType, "anchor_set", index, "dim", len(vecs[0]))
	return vecs, nil
}

// ClearCache drops every cached anchor embedding
func (s *Scorer) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[anchorKey][]api.Vector)
}

// CachedAnchorSets returns the number of anchor sets whose embeddings are cached
func (s *Scorer) CachedAnchorSets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// Score implements api.Scorer.
// in.Input is the question type and in.Output the answer. The score is the
// expected rating mapped from [1, 5] onto [0, 1].
func (s *Scorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "AnchorRating",
		Metadata: make(map[string]any),
	}

	rating, err := s.ScoreAnswer(ctx, in.Input, in.Output)
	if err != nil {
		result.Error = err
		return result
	}

	result.Score = (rating.ExpectedScore - 1) / (api.NumLevels - 1)
	result.Metadata["distribution"] = rating.Distribution
	result.Metadata["expected_score"] = rating.ExpectedScore
	result.Metadata["entropy"] = rating.Entropy
	result.Metadata["anchor_set_count"] = rating.AnchorSetCount
	result.Metadata["question_type"] = in.Input

	return result
}

var _ api.Scorer = (*Scorer)(nil)
