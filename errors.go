package goanchor

import (
	"github.com/datar-psa/goanchor/anchors"
	"github.com/datar-psa/goanchor/api"
	"github.com/datar-psa/goanchor/embedding"
)

var (
	ErrDimensionMismatch        = api.ErrDimensionMismatch
	ErrUnknownQuestionType      = api.ErrUnknownQuestionType
	ErrInvalidTemperature       = api.ErrInvalidTemperature
	ErrInvalidEpsilon           = api.ErrInvalidEpsilon
	ErrUnexpectedEmbeddingCount = api.ErrUnexpectedEmbeddingCount
	ErrNoDistributions          = embedding.ErrNoDistributions
	ErrInvalidCatalog           = anchors.ErrInvalidCatalog
	ErrNoExpectedValue          = api.ErrNoExpectedValue
)
