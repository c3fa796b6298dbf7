package anchors

import (
	_ "embed"
	"fmt"
	"sync"
)

//go:embed default_anchors.yaml
var defaultAnchors []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in catalog covering the question types
// ease, satisfaction, clarity, trust and recommend.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultAnchors)
		if err != nil {
			panic(fmt.Sprintf("anchors: built-in catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
