package testutils

import (
	"context"
	"sync"

	"github.com/datar-psa/goanchor/api"
)

// FakeEmbedder is a deterministic api.Embedder that records every call.
// Texts found in Vectors get that vector, others get a hash-derived vector of Dim values.
type FakeEmbedder struct {
	Vectors map[string]api.Vector
	Dim     int
	// Err, when set, is returned by every call
	Err error
	// FailOn makes calls containing the given text return the mapped error
	FailOn map[string]error

	mu    sync.Mutex
	calls [][]string
}

// NewFakeEmbedder creates a FakeEmbedder with the given fixed vectors
func NewFakeEmbedder(vectors map[string]api.Vector) *FakeEmbedder {
	return &FakeEmbedder{Vectors: vectors, Dim: 8}
}

// Embed implements api.Embedder
func (f *FakeEmbedder) Embed(ctx context.Context, texts []string) ([]api.Vector, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}

	out := make([]api.Vector, len(texts))
	for i, text := range texts {
		if err, ok := f.FailOn[text]; ok {
			return nil, err
		}
		if v, ok := f.Vectors[text]; ok {
			out[i] = append(api.Vector(nil), v...)
			continue
		}
		out[i] = HashVector(text, f.Dim)
	}
	return out, nil
}

// Calls returns the number of Embed calls made so far
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Requests returns a copy of the texts passed to every Embed call, in call order
func (f *FakeEmbedder) Requests() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// CountText returns how many times text was requested across all calls
func (f *FakeEmbedder) CountText(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		for _, t := range c {
			if t == text {
				n++
			}
		}
	}
	return n
}

// Reset forgets all recorded calls
func (f *FakeEmbedder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// HashVector derives a deterministic vector from s
func HashVector(s string, dim int) api.Vector {
	if dim <= 0 {
		dim = 8
	}
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h = (h ^ uint32(s[i])) * 16777619
	}
	v := make(api.Vector, dim)
	seed := h
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float64(seed%10000)/10000.0 - 0.5
	}
	return v
}

var _ api.Embedder = (*FakeEmbedder)(nil)
