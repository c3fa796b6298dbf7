package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/datar-psa/goanchor/anchors"
)

const statementsFlag = "statements"

type questionTypeInfo struct {
	QuestionType string              `json:"questionType" yaml:"questionType"`
	AnchorSets   int                 `json:"anchorSets" yaml:"anchorSets"`
	Statements   []anchors.AnchorSet `json:"statements,omitempty" yaml:"statements,omitempty"`
}

func anchorsCmd() *cli.Command {
	return &cli.Command{
		Name:  "anchors",
		Usage: "Inspect anchor catalogs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the question types of the active catalog",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  statementsFlag,
						Usage: "Include the anchor statements in the listing",
					},
				},
				Action: listAnchors,
			},
			{
				Name:      "validate",
				Usage:     "Check that an anchor file loads",
				ArgsUsage: "FILE",
				Action:    validateAnchors,
			},
		},
	}
}

func listAnchors(_ context.Context, cmd *cli.Command) error {
	catalog, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	withStatements := cmd.Bool(statementsFlag)
	var list []questionTypeInfo
	for _, qt := range catalog.QuestionTypes() {
		sets, err := catalog.AnchorSets(qt)
		if err != nil {
			return err
		}
		info := questionTypeInfo{QuestionType: qt, AnchorSets: len(sets)}
		if withStatements {
			info.Statements = sets
		}
		list = append(list, info)
	}
	return encode(cmd, cmd.Root().Writer, list)
}

func validateAnchors(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("anchor file argument required")
	}

	catalog, err := anchors.LoadFile(path)
	if err != nil {
		return err
	}

	var sets int
	for _, qt := range catalog.QuestionTypes() {
		s, err := catalog.AnchorSets(qt)
		if err != nil {
			return err
		}
		sets += len(s)
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "%s: %d question types, %d anchor sets\n", path, len(catalog.QuestionTypes()), sets)
	return err
}
