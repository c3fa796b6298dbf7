package embedcache_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/goanchor/api"
	"github.com/datar-psa/goanchor/embedcache"
	"github.com/datar-psa/goanchor/internal/testutils"
)

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Get(context.Context, string, []string) (map[string]api.Vector, error) {
	return nil, errStoreDown
}

func (failingStore) Put(context.Context, string, map[string]api.Vector) error {
	return errStoreDown
}

func (failingStore) Clear(context.Context) error { return errStoreDown }

type shortEmbedder struct{}

func (shortEmbedder) Embed(context.Context, []string) ([]api.Vector, error) {
	return []api.Vector{{1, 0}}, nil
}

// gatedEmbedder blocks every call until release is closed
type gatedEmbedder struct {
	*testutils.FakeEmbedder
	release chan struct{}
}

func (g gatedEmbedder) Embed(ctx context.Context, texts []string) ([]api.Vector, error) {
	<-g.release
	return g.FakeEmbedder.Embed(ctx, texts)
}

func TestCachingEmbedder_DedupAndHits(t *testing.T) {
	ctx := context.Background()
	backend := testutils.NewFakeEmbedder(nil)
	c := embedcache.New(backend, embedcache.Options{Model: "m"})

	vecs, err := c.Embed(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.Equal(t, testutils.HashVector("a", 8), vecs[0])
	assert.Equal(t, [][]string{{"a", "b"}}, backend.Requests())

	vecs2, err := c.Embed(ctx, []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, vecs[1], vecs2[0])
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, backend.Requests())

	_, err = c.Embed(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Calls())

	assert.Equal(t, embedcache.Stats{Hits: 4, Misses: 3, Calls: 2}, c.Stats())
}

func TestCachingEmbedder_Empty(t *testing.T) {
	backend := testutils.NewFakeEmbedder(nil)
	c := embedcache.New(backend, embedcache.Options{})

	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, backend.Calls())
}

func TestCachingEmbedder_ModelScoped(t *testing.T) {
	ctx := context.Background()
	store := embedcache.NewMemoryStore()
	backend := testutils.NewFakeEmbedder(nil)

	_, err := embedcache.New(backend, embedcache.Options{Store: store, Model: "m1"}).Embed(ctx, []string{"x"})
	require.NoError(t, err)
	_, err = embedcache.New(backend, embedcache.Options{Store: store, Model: "m2"}).Embed(ctx, []string{"x"})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.Calls())
	assert.Equal(t, 2, store.Len())
}

func TestCachingEmbedder_Clear(t *testing.T) {
	ctx := context.Background()
	backend := testutils.NewFakeEmbedder(nil)
	c := embedcache.New(backend, embedcache.Options{})

	_, err := c.Embed(ctx, []string{"x"})
	require.NoError(t, err)
	require.NoError(t, c.Clear(ctx))
	_, err = c.Embed(ctx, []string{"x"})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.Calls())
}

func TestCachingEmbedder_BackendErrorNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	backend := testutils.NewFakeEmbedder(nil)
	backend.FailOn = map[string]error{"bad": boom}
	store := embedcache.NewMemoryStore()
	c := embedcache.New(backend, embedcache.Options{Store: store})

	_, err := c.Embed(ctx, []string{"ok", "bad"})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, store.Len())
}

func TestCachingEmbedder_CountMismatch(t *testing.T) {
	c := embedcache.New(shortEmbedder{}, embedcache.Options{})

	_, err := c.Embed(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, api.ErrUnexpectedEmbeddingCount)
}

func TestCachingEmbedder_StoreFailureFallsBack(t *testing.T) {
	backend := testutils.NewFakeEmbedder(nil)
	c := embedcache.New(backend, embedcache.Options{Store: failingStore{}})

	vecs, err := c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, 1, backend.Calls())
}

func TestCachingEmbedder_StoreFailureStrict(t *testing.T) {
	backend := testutils.NewFakeEmbedder(nil)
	c := embedcache.New(backend, embedcache.Options{Store: failingStore{}, FailOnStoreError: true})

	_, err := c.Embed(context.Background(), []string{"a"})
	require.ErrorIs(t, err, errStoreDown)
	assert.Zero(t, backend.Calls())
}

func TestCachingEmbedder_ConcurrentMissesShareCall(t *testing.T) {
	backend := gatedEmbedder{FakeEmbedder: testutils.NewFakeEmbedder(nil), release: make(chan struct{})}
	c := embedcache.New(backend, embedcache.Options{})

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]api.Vector, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Embed(context.Background(), []string{"same", "texts"})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, backend.Calls())
}

func TestCachingEmbedder_CancelledCallerLeavesSharedCall(t *testing.T) {
	backend := gatedEmbedder{FakeEmbedder: testutils.NewFakeEmbedder(nil), release: make(chan struct{})}
	c := embedcache.New(backend, embedcache.Options{})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := c.Embed(ctxA, []string{"x"})
		errA <- err
	}()
	require.Eventually(t, func() bool { return c.Stats().Calls == 1 }, time.Second, time.Millisecond)

	var (
		wg   sync.WaitGroup
		vecB []api.Vector
		errB error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		vecB, errB = c.Embed(context.Background(), []string{"x"})
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(backend.release)
	wg.Wait()
	require.NoError(t, errB)
	assert.Equal(t, []api.Vector{testutils.HashVector("x", 8)}, vecB)
	assert.Equal(t, 1, backend.Calls())
}

func TestCachingEmbedder_CancelledBeforeFetch(t *testing.T) {
	backend := testutils.NewFakeEmbedder(nil)
	c := embedcache.New(backend, embedcache.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Embed(ctx, []string{"x"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, backend.Calls())
}

func TestCachingEmbedder_SeparatorInTextDoesNotCollide(t *testing.T) {
	backend := gatedEmbedder{FakeEmbedder: testutils.NewFakeEmbedder(nil), release: make(chan struct{})}
	c := embedcache.New(backend, embedcache.Options{})

	requests := [][]string{{"a", "b"}, {"a\x00b"}}
	results := make([][]api.Vector, len(requests))
	errs := make([]error, len(requests))
	var wg sync.WaitGroup
	for i, texts := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Embed(context.Background(), texts)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	for i, texts := range requests {
		require.NoError(t, errs[i])
		require.Len(t, results[i], len(texts))
		for j, text := range texts {
			assert.Equal(t, testutils.HashVector(text, 8), results[i][j], "text %q", text)
		}
	}
	assert.Equal(t, 2, backend.Calls())
}

func TestMemoryStore_CopiesVectors(t *testing.T) {
	ctx := context.Background()
	store := embedcache.NewMemoryStore()

	in := api.Vector{1, 2, 3}
	require.NoError(t, store.Put(ctx, "m", map[string]api.Vector{"x": in}))
	in[0] = 99

	got, err := store.Get(ctx, "m", []string{"x"})
	require.NoError(t, err)
	got["x"][1] = 99

	again, err := store.Get(ctx, "m", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, api.Vector{1, 2, 3}, again["x"])
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	store, err := embedcache.NewSQLiteStore(path)
	require.NoError(t, err)
	want := map[string]api.Vector{"hello": {0.25, -1, 3.5}, "world": {1}}
	require.NoError(t, store.Put(ctx, "m", want))
	require.NoError(t, store.Close())

	reopened, err := embedcache.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "m", []string{"hello", "world", "missing"})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	other, err := reopened.Get(ctx, "other-model", []string{"hello"})
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, reopened.Clear(ctx))
	got, err = reopened.Get(ctx, "m", []string{"hello"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_BehindCachingEmbedder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	backend := testutils.NewFakeEmbedder(nil)

	store, err := embedcache.NewSQLiteStore(path)
	require.NoError(t, err)
	first, err := embedcache.New(backend, embedcache.Options{Store: store, Model: "m"}).Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = embedcache.NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()
	second, err := embedcache.New(backend, embedcache.Options{Store: store, Model: "m"}).Embed(ctx, []string{"b", "a"})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 1, backend.Calls())
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	_, err := embedcache.NewSQLiteStore("")
	require.Error(t, err)
}
