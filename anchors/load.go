package anchors

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/datar-psa/goanchor/api"
)

// Load reads a catalog document from r.
//
// The document maps each question type to a list of anchor sets, each anchor set
// mapping the levels "1" through "5" to a statement:
//
//	ease:
//	  - "1": It was very difficult
//	    "2": ...
//
// JSON documents are accepted as well.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchor catalog: %w", err)
	}
	return Parse(data)
}

// LoadFile reads a catalog from a YAML or JSON file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchor catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) catalog document.
// Duplicate question types or levels are rejected.
func Parse(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: expected a mapping of question types", ErrInvalidCatalog, doc.Line)
	}

	raw := make(map[string][]map[string]string, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		if _, dup := raw[key.Value]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate question type %q", ErrInvalidCatalog, key.Line, key.Value)
		}
		if value.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%w: line %d: question type %q must list anchor sets", ErrInvalidCatalog, value.Line, key.Value)
		}

		sets := make([]map[string]string, 0, len(value.Content))
		for j, setNode := range value.Content {
			if setNode.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%w: line %d: question type %q anchor set %d must map levels to statements", ErrInvalidCatalog, setNode.Line, key.Value, j)
			}
			set := make(map[string]string, len(setNode.Content)/2)
			for k := 0; k+1 < len(setNode.Content); k += 2 {
				level, stmt := setNode.Content[k], setNode.Content[k+1]
				if _, dup := set[level.Value]; dup {
					return nil, fmt.Errorf("%w: line %d: question type %q anchor set %d: duplicate level %q", ErrInvalidCatalog, level.Line, key.Value, j, level.Value)
				}
				if stmt.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("%w: line %d: question type %q anchor set %d level %s must be a string", ErrInvalidCatalog, stmt.Line, key.Value, j, level.Value)
				}
				set[level.Value] = stmt.Value
			}
			sets = append(sets, set)
		}
		raw[key.Value] = sets
	}

	return fromRaw(raw)
}

// fromRaw converts string-keyed level maps into typed anchor sets.
// Every set must define exactly the levels "1" through "5".
func fromRaw(raw map[string][]map[string]string) (*Catalog, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no question types defined", ErrInvalidCatalog)
	}

	sets := make(map[string][]AnchorSet, len(raw))
	for questionType, list := range raw {
		typed := make([]AnchorSet, 0, len(list))
		for i, levels := range list {
			var set AnchorSet
			for key, stmt := range levels {
				level, err := strconv.Atoi(key)
				if err != nil || level < 1 || level > api.NumLevels || strconv.Itoa(level) != key {
					return nil, fmt.Errorf("%w: question type %q anchor set %d: unexpected level %q", ErrInvalidCatalog, questionType, i, key)
				}
				set[level-1] = stmt
			}
			if len(levels) != api.NumLevels {
				for l := 1; l <= api.NumLevels; l++ {
					if _, ok := levels[strconv.Itoa(l)]; !ok {
						return nil, fmt.Errorf("%w: question type %q anchor set %d: missing level %d", ErrInvalidCatalog, questionType, i, l)
					}
				}
			}
			typed = append(typed, set)
		}
		sets[questionType] = typed
	}

	return NewCatalog(sets)
}
