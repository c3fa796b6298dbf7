package goanchor

import "github.com/datar-psa/goanchor/api"

// Score represents the result of an evaluation through the generic scorer interface
type Score = api.Score

// ScoreInputs carries inputs for generic scorers.
// For anchor scorers Input is the question type and Output the answer.
type ScoreInputs = api.ScoreInputs

// Scorer evaluates the quality of an output
type Scorer = api.Scorer
