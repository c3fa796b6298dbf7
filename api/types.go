package api

import "context"

// NumLevels is the number of ordinal rating levels (1..5)
const NumLevels = 5

// Level is an ordinal rating level between 1 and NumLevels
type Level int

// Levels lists every rating level in ascending order
var Levels = [NumLevels]Level{1, 2, 3, 4, 5}

// Vector is an embedding vector produced by an Embedder
type Vector []float64

// Distribution is a probability distribution over the rating levels.
// Index i holds the probability of level i+1.
type Distribution [NumLevels]float64

// Embedder generates vector embeddings for a batch of texts
// This interface must be implemented by library consumers
// Gemini and OpenAI-compatible implementations are provided in the gemini and openai subpackages
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	// Every vector returned by one Embedder has the same dimensionality.
	Embed(ctx context.Context, texts []string) ([]Vector, error)
}

// ScoreResult is the rating distribution computed for a single answer
type ScoreResult struct {
	// Distribution is the averaged probability of each level 1..5
	Distribution Distribution `json:"distribution" yaml:"distribution"`
	// ExpectedScore is the probability-weighted mean level, in [1, 5]
	ExpectedScore float64 `json:"expectedScore" yaml:"expectedScore"`
	// Entropy is the base-2 Shannon entropy of Distribution, in [0, log2(5)]
	Entropy float64 `json:"entropy" yaml:"entropy"`
	// AnchorSetCount is the number of anchor sets averaged into Distribution
	AnchorSetCount int `json:"anchorSetCount" yaml:"anchorSetCount"`
	// SetDistributions holds the per anchor set distributions before averaging
	SetDistributions []Distribution `json:"-" yaml:"-"`
}

// ScoredAnswer is a ScoreResult together with the answer it was computed for
type ScoredAnswer struct {
	ScoreResult `yaml:",inline"`
	Answer      string `json:"answer" yaml:"answer"`
}

// Summary aggregates the successfully scored questions of a batch
type Summary struct {
	AverageExpectedScore float64 `json:"averageExpectedScore" yaml:"averageExpectedScore"`
	AverageEntropy       float64 `json:"averageEntropy" yaml:"averageEntropy"`
	QuestionCount        int     `json:"questionCount" yaml:"questionCount"`
}

// Skip records a question that was excluded from a batch result
type Skip struct {
	QuestionID   string
	QuestionType string
	Reason       error
}

// BatchScoreResult is the result of scoring a set of answers keyed by question id
type BatchScoreResult struct {
	Scores  map[string]ScoredAnswer `json:"scores" yaml:"scores"`
	Summary Summary                 `json:"summary" yaml:"summary"`
	// Skipped lists the questions that could not be scored, in processing order
	Skipped []Skip `json:"-" yaml:"-"`
}

// Score represents the result of an evaluation
type Score struct {
	// Name identifies the scorer that produced this result
	Name string
	// Score is a value between 0 and 1, where 1 is the best possible score
	Score float64
	// Metadata contains additional information about the scoring process
	Metadata map[string]any
	// Error contains any error that occurred during scoring
	Error error
}

// ScoreInputs carries inputs for scoring across different scorers.
//
// Fields usage conventions:
// - Output:   the free-text answer to score (required)
// - Expected: the reference text (pairwise similarity only)
// - Input:    the question type the answer belongs to (anchor rating only)
type ScoreInputs struct {
	Output   string
	Expected string
	Input    string
}

// Scorer evaluates the quality of an output
type Scorer interface {
	// Score evaluates the output and returns a score
	// in: container for output/expected/input depending on scorer needs
	Score(ctx context.Context, in ScoreInputs) Score
}
