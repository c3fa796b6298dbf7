package embedcache

import (
	"context"
	"sync"

	"github.com/datar-psa/goanchor/api"
)

type memoryKey struct {
	model string
	text  string
}

// MemoryStore keeps vectors in process memory, keyed by model and full text.
// Vectors are copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[memoryKey]api.Vector
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[memoryKey]api.Vector)}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, model string, texts []string) (map[string]api.Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]api.Vector, len(texts))
	for _, t := range texts {
		if v, ok := s.m[memoryKey{model, t}]; ok {
			out[t] = append(api.Vector(nil), v...)
		}
	}
	return out, nil
}

// Put implements Store
func (s *MemoryStore) Put(_ context.Context, model string, vectors map[string]api.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, v := range vectors {
		s.m[memoryKey{model, t}] = append(api.Vector(nil), v...)
	}
	return nil
}

// Clear implements Store
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[memoryKey]api.Vector)
	return nil
}

// Len returns the number of cached vectors
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

var _ Store = (*MemoryStore)(nil)
