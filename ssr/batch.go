package ssr

import (
	"context"
	"log/slog"
	"sort"

	"github.com/datar-psa/goanchor/api"
)

// Outcome is the result of scoring one question of a batch.
// Exactly one of Answer and Err is set.
type Outcome struct {
	QuestionID   string
	QuestionType string
	Answer       *api.ScoredAnswer
	Err          error
}

// Skipped reports whether the question was excluded from the batch result
func (o Outcome) Skipped() bool {
	return o.Answer == nil
}

// BatchScorer applies a Scorer to many answers, skipping the ones that fail
type BatchScorer struct {
	scorer *Scorer
	logger *slog.Logger
}

// NewBatchScorer creates a BatchScorer. A nil logger means slog.Default().
func NewBatchScorer(scorer *Scorer, logger *slog.Logger) *BatchScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchScorer{scorer: scorer, logger: logger}
}

// ScoreAll scores every answer, keyed by question id.
//
// The question type of an answer is questionTypes[id] when present and the id
// itself otherwise. Questions that fail to score are logged, left out of the
// result and its summary, and listed in Skipped; they never abort the batch.
func (b *BatchScorer) ScoreAll(ctx context.Context, answers map[string]string, questionTypes map[string]string) api.BatchScoreResult {
	return Aggregate(b.Outcomes(ctx, answers, questionTypes))
}

// Outcomes scores every answer and returns one Outcome per question id, sorted by id.
// Once ctx is done the remaining questions are reported with the context error.
func (b *BatchScorer) Outcomes(ctx context.Context, answers map[string]string, questionTypes map[string]string) []Outcome {
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		questionType := id
		if t, ok := questionTypes[id]; ok {
			questionType = t
		}
		outcome := Outcome{QuestionID: id, QuestionType: questionType}

		if err := ctx.Err(); err != nil {
			outcome.Err = err
		} else if result, err := b.scorer.ScoreAnswer(ctx, questionType, answers[id]); err != nil {
			outcome.Err = err
		} else {
			outcome.Answer = &api.ScoredAnswer{ScoreResult: result, Answer: answers[id]}
		}

		if outcome.Err != nil {
			b.logger.Warn("skipping question", "question_id", id, "question_type", questionType, "error", outcome.Err)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// Aggregate folds outcomes into a BatchScoreResult.
// Averages cover successful outcomes only and are 0 when there are none.
func Aggregate(outcomes []Outcome) api.BatchScoreResult {
	result := api.BatchScoreResult{
		Scores: make(map[string]api.ScoredAnswer, len(outcomes)),
	}

	var totalScore, totalEntropy float64
	for _, o := range outcomes {
		if o.Skipped() {
			result.Skipped = append(result.Skipped, api.Skip{
				QuestionID:   o.QuestionID,
				QuestionType: o.QuestionType,
				Reason:       o.Err,
			})
			continue
		}
		result.Scores[o.QuestionID] = *o.Answer
		totalScore += o.Answer.ExpectedScore
		totalEntropy += o.Answer.Entropy
	}

	if n := len(result.Scores); n > 0 {
		result.Summary = api.Summary{
			AverageExpectedScore: totalScore / float64(n),
			AverageEntropy:       totalEntropy / float64(n),
			QuestionCount:        n,
		}
	}

	return result
}
