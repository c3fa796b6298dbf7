// Package embedcache memoizes embeddings in front of an api.Embedder.
//
// A CachingEmbedder keys vectors by model and raw text, drops duplicate texts
// within a request and only forwards the misses to the backend. Concurrent
// requests for the same missing texts share a single backend call.
package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/datar-psa/goanchor/api"
)

// Store persists embeddings between requests. Implementations must be safe
// for concurrent use and must never return a vector stored for another text.
type Store interface {
	// Get returns the vectors cached for texts; missing texts are absent from the map
	Get(ctx context.Context, model string, texts []string) (map[string]api.Vector, error)
	// Put caches the given text to vector pairs
	Put(ctx context.Context, model string, vectors map[string]api.Vector) error
	// Clear removes every cached vector
	Clear(ctx context.Context) error
}

// Options configures a CachingEmbedder
type Options struct {
	// Store holds the cached vectors; defaults to a new MemoryStore
	Store Store
	// Model scopes the cache keys so different models never share vectors
	Model string
	// Logger receives debug and warning output; defaults to slog.Default()
	Logger *slog.Logger
	// FailOnStoreError makes store failures fatal instead of falling back to the backend
	FailOnStoreError bool
}

// Stats counts cache activity
type Stats struct {
	// Hits is the number of texts served from the store
	Hits int64
	// Misses is the number of texts forwarded to the backend
	Misses int64
	// Calls is the number of backend Embed calls
	Calls int64
}

// CachingEmbedder wraps an api.Embedder with a text to vector cache
type CachingEmbedder struct {
	backend api.Embedder
	store   Store
	model   string
	logger  *slog.Logger
	strict  bool
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	calls  atomic.Int64
}

// New wraps backend with a cache
func New(backend api.Embedder, opts Options) *CachingEmbedder {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingEmbedder{
		backend: backend,
		store:   store,
		model:   opts.Model,
		logger:  logger,
		strict:  opts.FailOnStoreError,
	}
}

// Embed implements api.Embedder
func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([]api.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	unique := make([]string, 0, len(texts))
	seen := make(map[string]bool, len(texts))
	for _, t := range texts {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	found, err := c.store.Get(ctx, c.model, unique)
	if err != nil {
		if c.strict {
			return nil, fmt.Errorf("embedding cache lookup failed: %w", err)
		}
		c.logger.Warn("embedding cache lookup failed", "error", err)
		found = nil
	}

	var missing []string
	for _, t := range unique {
		if _, ok := found[t]; !ok {
			missing = append(missing, t)
		}
	}
	c.hits.Add(int64(len(unique) - len(missing)))

	vectors := make(map[string]api.Vector, len(unique))
	for t, v := range found {
		vectors[t] = v
	}

	if len(missing) > 0 {
		fetched, err := c.fetch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for t, v := range fetched {
			vectors[t] = v
		}
	}

	out := make([]api.Vector, len(texts))
	for i, t := range texts {
		v, ok := vectors[t]
		if !ok {
			return nil, fmt.Errorf("%w: no vector for input %d", api.ErrUnexpectedEmbeddingCount, i)
		}
		out[i] = v
	}
	return out, nil
}

// fetch embeds missing on the backend and stores the result.
// Identical concurrent misses share one backend call. The shared call is not
// bound to any caller's cancellation; each caller stops waiting when its own
// ctx is done.
func (c *CachingEmbedder) fetch(ctx context.Context, missing []string) (map[string]api.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	callCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.flightKey(missing), func() (any, error) {
		c.misses.Add(int64(len(missing)))
		c.calls.Add(1)

		vecs, err := c.backend.Embed(callCtx, missing)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missing) {
			return nil, fmt.Errorf("%w: got %d, want %d", api.ErrUnexpectedEmbeddingCount, len(vecs), len(missing))
		}

		fetched := make(map[string]api.Vector, len(missing))
		for i, t := range missing {
			fetched[t] = vecs[i]
		}
		if err := c.store.Put(callCtx, c.model, fetched); err != nil {
			if c.strict {
				return nil, fmt.Errorf("embedding cache store failed: %w", err)
			}
			c.logger.Warn("embedding cache store failed", "error", err)
		}
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("shared in-flight embedding request", "texts", len(missing))
		}
		return res.Val.(map[string]api.Vector), nil
	}
}

// flightKey identifies a backend request by the digests of its texts.
// Digests have a fixed length, so no two distinct text lists share a key.
func (c *CachingEmbedder) flightKey(missing []string) string {
	var b strings.Builder
	b.Grow(len(missing) * 65)
	for _, t := range missing {
		b.WriteString(storeKey(c.model, t))
		b.WriteByte('/')
	}
	return b.String()
}

// Stats returns the cache counters
func (c *CachingEmbedder) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Calls:  c.calls.Load(),
	}
}

// Clear empties the underlying store
func (c *CachingEmbedder) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

var _ api.Embedder = (*CachingEmbedder)(nil)
