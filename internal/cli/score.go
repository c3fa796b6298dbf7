package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/datar-psa/goanchor/ssr"
)

const stdinPath = "-"

const (
	answersFlag       = "answers"
	questionTypesFlag = "question-types"
	outputFlag        = "output"
	temperatureFlag   = "temperature"
	epsilonFlag       = "epsilon"
	failOnSkipFlag    = "fail-on-skip"
)

func (a *app) scoreCmd() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "Score a batch of answers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     answersFlag,
				Usage:    "JSON file mapping question id to answer text, - for stdin",
				Required: true,
			},
			&cli.StringFlag{
				Name:  questionTypesFlag,
				Usage: "JSON file mapping question id to question type (optional, defaults to the id)",
			},
			&cli.StringFlag{
				Name:  outputFlag,
				Usage: "Write the result to this file instead of stdout",
			},
			&cli.FloatFlag{
				Name:    temperatureFlag,
				Usage:   "Softmax temperature, lower is sharper",
				Value:   ssr.DefaultTemperature,
				Sources: cli.EnvVars("GOANCHOR_TEMPERATURE"),
			},
			&cli.FloatFlag{
				Name:    epsilonFlag,
				Usage:   "Probability floor added to every level, 0 disables it",
				Value:   ssr.DefaultEpsilon,
				Sources: cli.EnvVars("GOANCHOR_EPSILON"),
			},
			&cli.BoolFlag{
				Name:  failOnSkipFlag,
				Usage: "Exit with an error when any question could not be scored",
			},
		},
		Action: a.score,
	}
}

func (a *app) score(ctx context.Context, cmd *cli.Command) error {
	answers, err := readStringMap(cmd, cmd.String(answersFlag))
	if err != nil {
		return fmt.Errorf("error reading answers: %w", err)
	}

	var questionTypes map[string]string
	if path := cmd.String(questionTypesFlag); path != "" {
		if questionTypes, err = readStringMap(cmd, path); err != nil {
			return fmt.Errorf("error reading question types: %w", err)
		}
	}

	catalog, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	embedder, closeStore, err := a.buildEmbedder(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	epsilon := cmd.Float(epsilonFlag)
	scorer := ssr.NewScorer(embedder, catalog, ssr.Options{
		Temperature: cmd.Float(temperatureFlag),
		Epsilon:     &epsilon,
		Logger:      slog.Default(),
	})
	result := ssr.NewBatchScorer(scorer, slog.Default()).ScoreAll(ctx, answers, questionTypes)

	stats := embedder.Stats()
	slog.Debug("embedding cache", "hits", stats.Hits, "misses", stats.Misses, "calls", stats.Calls)
	slog.Info("scored answers", "scored", result.Summary.QuestionCount, "skipped", len(result.Skipped))

	if err := writeResult(cmd, result); err != nil {
		return err
	}

	if cmd.Bool(failOnSkipFlag) && len(result.Skipped) > 0 {
		first := result.Skipped[0]
		return fmt.Errorf("%d question(s) skipped, first %s: %w", len(result.Skipped), first.QuestionID, first.Reason)
	}
	return nil
}

func writeResult(cmd *cli.Command, v any) error {
	path := cmd.String(outputFlag)
	if path == "" {
		return encode(cmd, cmd.Root().Writer, v)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", path, err)
	}
	if err := encode(cmd, f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readStringMap decodes a JSON object of strings from path or stdin
func readStringMap(cmd *cli.Command, path string) (map[string]string, error) {
	var r io.Reader
	if path == stdinPath {
		r = cmd.Root().Reader
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var m map[string]string
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return m, nil
}
