// Package anchors holds the reference statements that define each rating level.
//
// A Catalog maps a question type to one or more anchor sets. Every anchor set
// words the same five levels differently; scorers average over all of them so
// no single phrasing dominates the rating.
package anchors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/datar-psa/goanchor/api"
)

// ErrInvalidCatalog is returned when anchor configuration fails validation
var ErrInvalidCatalog = errors.New("invalid anchor catalog")

// AnchorSet holds one statement per rating level; index i is level i+1
type AnchorSet [api.NumLevels]string

// Statement returns the statement for level, or "" when level is out of range
func (s AnchorSet) Statement(level api.Level) string {
	if level < 1 || int(level) > api.NumLevels {
		return ""
	}
	return s[level-1]
}

// Statements returns the statements in level order 1..5
func (s AnchorSet) Statements() []string {
	return s[:]
}

func (s AnchorSet) validate() error {
	for i, stmt := range s {
		if strings.TrimSpace(stmt) == "" {
			return fmt.Errorf("level %d: empty statement", i+1)
		}
	}
	return nil
}

// Catalog is a read-only registry of anchor sets keyed by question type
type Catalog struct {
	sets map[string][]AnchorSet
}

// NewCatalog validates sets and returns a Catalog holding a copy of them
func NewCatalog(sets map[string][]AnchorSet) (*Catalog, error) {
	c := &Catalog{sets: make(map[string][]AnchorSet, len(sets))}
	for questionType, list := range sets {
		if strings.TrimSpace(questionType) == "" {
			return nil, fmt.Errorf("%w: empty question type", ErrInvalidCatalog)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: question type %q has no anchor sets", ErrInvalidCatalog, questionType)
		}
		for i, set := range list {
			if err := set.validate(); err != nil {
				return nil, fmt.Errorf("%w: question type %q anchor set %d: %v", ErrInvalidCatalog, questionType, i, err)
			}
		}
		c.sets[questionType] = append([]AnchorSet(nil), list...)
	}
	return c, nil
}

// AnchorSets returns the anchor sets registered for questionType, in configuration order
func (c *Catalog) AnchorSets(questionType string) ([]AnchorSet, error) {
	list, ok := c.sets[questionType]
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownQuestionType, questionType)
	}
	return append([]AnchorSet(nil), list...), nil
}

// Has reports whether questionType is registered
func (c *Catalog) Has(questionType string) bool {
	return len(c.sets[questionType]) > 0
}

// QuestionTypes returns the registered question types, sorted
func (c *Catalog) QuestionTypes() []string {
	types := make([]string, 0, len(c.sets))
	for t := range c.sets {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Merge returns a new Catalog with the entries of other added to c.
// Question types present in both take other's anchor sets.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	merged := &Catalog{sets: make(map[string][]AnchorSet, len(c.sets)+len(other.sets))}
	for t, list := range c.sets {
		merged.sets[t] = list
	}
	for t, list := range other.sets {
		merged.sets[t] = list
	}
	return merged
}
