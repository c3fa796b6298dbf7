package ssr

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/datar-psa/goanchor/anchors"
	"github.com/datar-psa/goanchor/api"
	"github.com/datar-psa/goanchor/internal/testutils"
)

// unit returns a 5-dimensional vector pointing mostly along axis level-1
func unit(level int, noise float64) api.Vector {
	v := make(api.Vector, api.NumLevels)
	for i := range v {
		v[i] = noise
	}
	v[level-1] = 1
	return v
}

var (
	setA = anchors.AnchorSet{"a: awful", "a: poor", "a: okay", "a: good", "a: superb"}
	setB = anchors.AnchorSet{"b: impossible", "b: hard", "b: average", "b: easy", "b: effortless"}
)

// newFixture builds a two-set "ease" catalog whose level statements embed onto orthogonal axes
func newFixture(t *testing.T) (*anchors.Catalog, *testutils.FakeEmbedder) {
	t.Helper()

	catalog, err := anchors.NewCatalog(map[string][]anchors.AnchorSet{
		"ease": {setA, setB},
	})
	if err != nil {
		t.Fatalf("NewCatalog() unexpected error = %v", err)
	}

	vectors := map[string]api.Vector{
		"it was effortless": unit(5, 0.05),
		"it was awful":      unit(1, 0.05),
		"zero":              {0, 0, 0, 0, 0},
		"short":             {1, 0},
	}
	for l, stmt := range setA {
		vectors[stmt] = unit(l+1, 0.0)
	}
	for l, stmt := range setB {
		vectors[stmt] = unit(l+1, 0.1)
	}

	embedder := testutils.NewFakeEmbedder(vectors)
	embedder.Dim = api.NumLevels
	return catalog, embedder
}

func checkDistribution(t *testing.T, d api.Distribution) {
	t.Helper()
	var total float64
	for i, p := range d {
		if !(p > 0) {
			t.Errorf("distribution[%d] = %v, want > 0", i, p)
		}
		total += p
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("distribution sums to %v, want 1", total)
	}
}

func TestScoreAnswer_ConcentratesOnClosestLevel(t *testing.T) {
	ctx := context.Background()
	catalog, embedder := newFixture(t)
	scorer := NewScorer(embedder, catalog, Options{})

	result, err := scorer.ScoreAnswer(ctx, "ease", "it was effortless")
	if err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}

	if result.ExpectedScore <= 4.0 {
		t.Errorf("ScoreAnswer() expectedScore = %v, want > 4.0", result.ExpectedScore)
	}
	if result.AnchorSetCount != 2 {
		t.Errorf("ScoreAnswer() anchorSetCount = %d, want 2", result.AnchorSetCount)
	}
	if len(result.SetDistributions) != 2 {
		t.Fatalf("ScoreAnswer() returned %d per-set distributions, want 2", len(result.SetDistributions))
	}
	for i, d := range result.SetDistributions {
		checkDistribution(t, d)
		for l := 0; l < 4; l++ {
			if d[l] >= d[4] {
				t.Errorf("anchor set %d: p[level %d] = %v not below p[level 5] = %v", i, l+1, d[l], d[4])
			}
		}
	}
	checkDistribution(t, result.Distribution)
	if result.Entropy < 0 || result.Entropy > math.Log2(5) {
		t.Errorf("ScoreAnswer() entropy = %v, out of range", result.Entropy)
	}

	low, err := scorer.ScoreAnswer(ctx, "ease", "it was awful")
	if err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}
	if low.ExpectedScore >= 2.0 {
		t.Errorf("ScoreAnswer() expectedScore = %v, want < 2.0", low.ExpectedScore)
	}
}

func TestScoreAnswer_AveragesAnchorSetsUniformly(t *testing.T) {
	catalog, embedder := newFixture(t)
	scorer := NewScorer(embedder, catalog, Options{Temperature: 0.5})

	result, err := scorer.ScoreAnswer(context.Background(), "ease", "it was effortless")
	if err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}

	for l := range result.Distribution {
		want := (result.SetDistributions[0][l] + result.SetDistributions[1][l]) / 2
		if math.Abs(result.Distribution[l]-want) > 1e-12 {
			t.Errorf("distribution[%d] = %v, want mean of sets %v", l, result.Distribution[l], want)
		}
	}
}

func TestScoreAnswer_UnknownQuestionType(t *testing.T) {
	catalog, embedder := newFixture(t)
	scorer := NewScorer(embedder, catalog, Options{})

	_, err := scorer.ScoreAnswer(context.Background(), "unknown_q", "text")
	if !errors.Is(err, api.ErrUnknownQuestionType) {
		t.Errorf("ScoreAnswer() error = %v, want %v", err, api.ErrUnknownQuestionType)
	}
	if embedder.Calls() != 0 {
		t.Errorf("ScoreAnswer() made %d embed calls for an unknown question type, want 0", embedder.Calls())
	}
}

func TestScoreAnswer_CachesAnchorsNotAnswers(t *testing.T) {
	ctx := context.Background()
	catalog, embedder := newFixture(t)
	scorer := NewScorer(embedder, catalog, Options{})

	first, err := scorer.ScoreAnswer(ctx, "ease", "it was effortless")
	if err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}
	// One call for the answer plus one per anchor set
	if got := embedder.Calls(); got != 3 {
		t.Fatalf("first ScoreAnswer() made %d embed calls, want 3", got)
	}
	if got := scorer.CachedAnchorSets(); got != 2 {
		t.Errorf("CachedAnchorSets() = %d, want 2", got)
	}
	requests := embedder.Requests()
	if len(requests[0]) != 1 || len(requests[1]) != 5 || len(requests[2]) != 5 {
		t.Errorf("embed request sizes = %d, %d, %d, want 1, 5, 5", len(requests[0]), len(requests[1]), len(requests[2]))
	}
	if !reflect.DeepEqual(requests[1], setA.Statements()) {
		t.Errorf("anchor request = %v, want statements in level order %v", requests[1], setA.Statements())
	}

	second, err := scorer.ScoreAnswer(ctx, "ease", "it was effortless")
	if err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}
	if got := embedder.Calls(); got != 4 {
		t.Errorf("second ScoreAnswer() brought embed calls to %d, want 4", got)
	}
	if got := embedder.CountText("it was effortless"); got != 2 {
		t.Errorf("answer text embedded %d times, want 2", got)
	}
	for _, stmt := range append(setA.Statements(), setB.Statements()...) {
		if got := embedder.CountText(stmt); got != 1 {
			t.Errorf("anchor %q embedded %d times, want 1", stmt, got)
		}
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated ScoreAnswer() results differ: %+v vs %+v", first, second)
	}

	scorer.ClearCache()
	if got := scorer.CachedAnchorSets(); got != 0 {
		t.Errorf("CachedAnchorSets() after ClearCache() = %d, want 0", got)
	}

	third, err := scorer.ScoreAnswer(ctx, "ease", "it was effortless")
	if err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}
	if got := embedder.Calls(); got != 7 {
		t.Errorf("ScoreAnswer() after ClearCache() brought embed calls to %d, want 7", got)
	}
	if !reflect.DeepEqual(first, third) {
		t.Errorf("ScoreAnswer() after ClearCache() = %+v, want %+v", third, first)
	}
}

func TestScoreAnswer_ProviderErrorPropagates(t *testing.T) {
	catalog, embedder := newFixture(t)
	providerErr := &api.ProviderError{Provider: "fake", Status: 429, Message: "quota exceeded"}
	embedder.Err = providerErr
	scorer := NewScorer(embedder, catalog, Options{})

	_, err := scorer.ScoreAnswer(context.Background(), "ease", "anything")
	if err != providerErr {
		t.Fatalf("ScoreAnswer() error = %v, want the provider error unchanged", err)
	}

	var pe *api.ProviderError
	if !errors.As(err, &pe) || pe.Status != 429 {
		t.Errorf("ScoreAnswer() error = %v, want ProviderError with status 429", err)
	}
}

func TestScoreAnswer_AnchorEmbeddingFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	catalog, embedder := newFixture(t)
	embedder.FailOn = map[string]error{setB.Statement(3): &api.ProviderError{Provider: "fake", Message: "boom"}}
	scorer := NewScorer(embedder, catalog, Options{})

	if _, err := scorer.ScoreAnswer(ctx, "ease", "it was effortless"); err == nil {
		t.Fatal("ScoreAnswer() expected error but got none")
	}
	if got := scorer.CachedAnchorSets(); got != 1 {
		t.Errorf("CachedAnchorSets() = %d, want only the successful set", got)
	}

	embedder.FailOn = nil
	if _, err := scorer.ScoreAnswer(ctx, "ease", "it was effortless"); err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}
	if got := scorer.CachedAnchorSets(); got != 2 {
		t.Errorf("CachedAnchorSets() = %d, want 2", got)
	}
}

func TestScoreAnswer_DimensionMismatch(t *testing.T) {
	catalog, embedder := newFixture(t)
	scorer := NewScorer(embedder, catalog, Options{})

	_, err := scorer.ScoreAnswer(context.Background(), "ease", "short")
	if !errors.Is(err, api.ErrDimensionMismatch) {
		t.Errorf("ScoreAnswer() error = %v, want %v", err, api.ErrDimensionMismatch)
	}
}

func TestScoreAnswer_ZeroEmbeddingIsUniform(t *testing.T) {
	catalog, embedder := newFixture(t)
	scorer := NewScorer(embedder, catalog, Options{})

	result, err := scorer.ScoreAnswer(context.Background(), "ease", "zero")
	if err != nil {
		t.Fatalf("ScoreAnswer() unexpected error = %v", err)
	}
	for i, p := range result.Distribution {
		if math.Abs(p-0.2) > 1e-12 {
			t.Errorf("distribution[%d] = %v, want 0.2", i, p)
		}
	}
	if math.Abs(result.ExpectedScore-3) > 1e-9 {
		t.Errorf("expectedScore = %v, want 3", result.ExpectedScore)
	}
	if math.Abs(result.Entropy-math.Log2(5)) > 1e-9 {
		t.Errorf("entropy = %v, want %v", result.Entropy, math.Log2(5))
	}
}

// shortEmbedder drops the last vector of every multi-text request
type shortEmbedder struct{ testutils.FakeEmbedder }

func (s *shortEmbedder) Embed(ctx context.Context, texts []string) ([]api.Vector, error) {
	vecs, err := s.FakeEmbedder.Embed(ctx, texts)
	if err != nil || len(vecs) < 2 {
		return vecs, err
	}
	return vecs[:len(vecs)-1], nil
}

func TestScoreAnswer_UnexpectedEmbeddingCount(t *testing.T) {
	catalog, _ := newFixture(t)
	scorer := NewScorer(&shortEmbedder{FakeEmbedder: testutils.FakeEmbedder{Dim: 5}}, catalog, Options{})

	_, err := scorer.ScoreAnswer(context.Background(), "ease", "anything")
	if !errors.Is(err, api.ErrUnexpectedEmbeddingCount) {
		t.Errorf("ScoreAnswer() error = %v, want %v", err, api.ErrUnexpectedEmbeddingCount)
	}
	if got := scorer.CachedAnchorSets(); got != 0 {
		t.Errorf("CachedAnchorSets() = %d, want 0", got)
	}
}

func TestScoreAnswer_NoEmbedder(t *testing.T) {
	scorer := NewScorer(nil, nil, Options{})

	if _, err := scorer.ScoreAnswer(context.Background(), "ease", "fine"); err == nil {
		t.Error("ScoreAnswer() expected error when embedder is nil")
	}
	if _, err := scorer.ScoreAnswer(context.Background(), "unknown_q", "fine"); !errors.Is(err, api.ErrUnknownQuestionType) {
		t.Errorf("ScoreAnswer() error = %v, want %v", err, api.ErrUnknownQuestionType)
	}
}

func TestScoreAnswer_DefaultCatalogProperties(t *testing.T) {
	ctx := context.Background()
	embedder := &testutils.FakeEmbedder{Dim: 16}
	scorer := NewScorer(embedder, nil, Options{})

	answers := []string{
		"the checkout was confusing",
		"fine",
		"I loved every minute of it",
		"",
		"would never come back",
	}

	for _, questionType := range anchors.Default().QuestionTypes() {
		for _, answer := range answers {
			result, err := scorer.ScoreAnswer(ctx, questionType, answer)
			if err != nil {
				t.Fatalf("ScoreAnswer(%q, %q) unexpected error = %v", questionType, answer, err)
			}
			checkDistribution(t, result.Distribution)
			if result.ExpectedScore < 1 || result.ExpectedScore > 5 {
				t.Errorf("ScoreAnswer(%q, %q) expectedScore = %v, out of [1, 5]", questionType, answer, result.ExpectedScore)
			}
			if result.Entropy < 0 || result.Entropy > math.Log2(5)+1e-12 {
				t.Errorf("ScoreAnswer(%q, %q) entropy = %v, out of range", questionType, answer, result.Entropy)
			}
			if result.AnchorSetCount != 6 {
				t.Errorf("ScoreAnswer(%q, %q) anchorSetCount = %d, want 6", questionType, answer, result.AnchorSetCount)
			}
		}
	}
}

func TestNewScorer_Options(t *testing.T) {
	s := NewScorer(nil, nil, Options{})
	if s.temperature != DefaultTemperature || s.epsilon != DefaultEpsilon {
		t.Errorf("NewScorer() defaults = (%v, %v), want (%v, %v)", s.temperature, s.epsilon, DefaultTemperature, DefaultEpsilon)
	}
	if s.Catalog() != anchors.Default() {
		t.Error("NewScorer() with nil catalog should use the default catalog")
	}

	noFloor := 0.0
	s = NewScorer(nil, nil, Options{Temperature: 0.3, Epsilon: &noFloor})
	if s.temperature != 0.3 || s.epsilon != 0 {
		t.Errorf("NewScorer() = (%v, %v), want (0.3, 0)", s.temperature, s.epsilon)
	}

	negative := -0.5
	s = NewScorer(testutils.NewFakeEmbedder(nil), nil, Options{Epsilon: &negative})
	if _, err := s.ScoreAnswer(context.Background(), "ease", "fine"); !errors.Is(err, api.ErrInvalidEpsilon) {
		t.Errorf("ScoreAnswer() error = %v, want %v", err, api.ErrInvalidEpsilon)
	}

	s = NewScorer(testutils.NewFakeEmbedder(nil), nil, Options{Temperature: -2})
	if _, err := s.ScoreAnswer(context.Background(), "ease", "fine"); !errors.Is(err, api.ErrInvalidTemperature) {
		t.Errorf("ScoreAnswer() error = %v, want %v", err, api.ErrInvalidTemperature)
	}
}

func TestScorer_Score(t *testing.T) {
	ctx := context.Background()
	catalog, embedder := newFixture(t)
	scorer := NewScorer(embedder, catalog, Options{})

	result := scorer.Score(ctx, api.ScoreInputs{Input: "ease", Output: "it was effortless"})
	if result.Error != nil {
		t.Fatalf("Score() unexpected error = %v", result.Error)
	}
	if result.Name != "AnchorRating" {
		t.Errorf("Score() name = %v, want 'AnchorRating'", result.Name)
	}
	if result.Score < 0.75 || result.Score > 1 {
		t.Errorf("Score() score = %v, want between 0.75 and 1", result.Score)
	}
	expected, ok := result.Metadata["expected_score"].(float64)
	if !ok || math.Abs(result.Score-(expected-1)/4) > 1e-12 {
		t.Errorf("Score() score = %v does not match expected_score %v", result.Score, result.Metadata["expected_score"])
	}
	if result.Metadata["anchor_set_count"] != 2 {
		t.Errorf("Score() anchor_set_count = %v, want 2", result.Metadata["anchor_set_count"])
	}

	failed := scorer.Score(ctx, api.ScoreInputs{Input: "unknown_q", Output: "text"})
	if !errors.Is(failed.Error, api.ErrUnknownQuestionType) {
		t.Errorf("Score() error = %v, want %v", failed.Error, api.ErrUnknownQuestionType)
	}
	if failed.Score != 0 {
		t.Errorf("Score() score = %v, want 0", failed.Score)
	}
}
