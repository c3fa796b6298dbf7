package goanchor

import (
	"github.com/datar-psa/goanchor/anchors"
	"github.com/datar-psa/goanchor/api"
)

// NumLevels is the number of points on the rating scale
const NumLevels = api.NumLevels

type Embedder = api.Embedder
type Vector = api.Vector
type Level = api.Level
type Distribution = api.Distribution
type ScoreResult = api.ScoreResult
type ScoredAnswer = api.ScoredAnswer
type Summary = api.Summary
type Skip = api.Skip
type BatchScoreResult = api.BatchScoreResult
type ProviderError = api.ProviderError

type AnchorSet = anchors.AnchorSet
type Catalog = anchors.Catalog

// DefaultCatalog returns the built-in anchor catalog
func DefaultCatalog() *Catalog {
	return anchors.Default()
}
