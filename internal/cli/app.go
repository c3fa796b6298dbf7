package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/datar-psa/goanchor/anchors"
	"github.com/datar-psa/goanchor/internal/logging"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"

	providerGemini = "gemini"
	providerOpenAI = "openai"
)

var (
	version = "v0.0.1-default"
	commit  = ""
)

const (
	logLevelFlag = "log-level"
	formatFlag   = "format"
	anchorsFlag  = "anchors"
)

// flags hold parse state, so every command gets fresh instances
func rootFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    logLevelFlag,
			Usage:   "Log level [debug, info, warn, error]",
			Value:   "info",
			Sources: cli.EnvVars("GOANCHOR_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    formatFlag,
			Usage:   "Output format [json, yaml]",
			Value:   formatJSON,
			Sources: cli.EnvVars("GOANCHOR_FORMAT"),
		},
		&cli.StringFlag{
			Name:    anchorsFlag,
			Usage:   "YAML or JSON anchor file layered over the built-in catalog (optional)",
			Sources: cli.EnvVars("GOANCHOR_ANCHORS"),
		},
	}
	flags = append(flags, providerFlags()...)
	return append(flags, cacheFlags()...)
}

// app carries the dependencies commands are built with
type app struct {
	newEmbedder embedderFactory
}

// Execute creates and runs the CLI application
func Execute() {
	cmd := newCommand(&app{newEmbedder: newProviderEmbedder})
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:            "goanchor",
		Version:         fmt.Sprintf("%s (%s)", version, commit),
		Usage:           "Rate free-text answers on a 1-5 scale by similarity to anchor statements",
		HideHelpCommand: true,
		Flags:           rootFlags(),
		Commands: []*cli.Command{
			a.scoreCmd(),
			anchorsCmd(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			slog.SetDefault(logging.NewCLILogger(cmd.String(logLevelFlag)))

			switch f := cmd.String(formatFlag); f {
			case formatJSON, formatYAML, "yml":
			default:
				return ctx, fmt.Errorf("unsupported output format %q", f)
			}
			return ctx, nil
		},
	}
}

// loadCatalog returns the built-in catalog, overlaid with the --anchors file when set
func loadCatalog(cmd *cli.Command) (*anchors.Catalog, error) {
	catalog := anchors.Default()
	path := cmd.String(anchorsFlag)
	if path == "" {
		return catalog, nil
	}
	custom, err := anchors.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("loaded anchors", "path", path, "question_types", len(custom.QuestionTypes()))
	return catalog.Merge(custom), nil
}

// encode writes v to w in the --format selected on the command line
func encode(cmd *cli.Command, w io.Writer, v any) error {
	if f := strings.ToLower(cmd.String(formatFlag)); f == formatYAML || f == "yml" {
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(v); err != nil {
			return fmt.Errorf("error encoding yaml: %w", err)
		}
		return e.Close()
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
