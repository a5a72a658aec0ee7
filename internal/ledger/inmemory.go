package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type inMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development.
func NewInMemory() Store {
	return &inMemoryStore{records: make(map[string][]byte)}
}

func (s *inMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.records[key]
	if !ok {
		return nil, notFound(key)
	}
	return clone(value), nil
}

func (s *inMemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = clone(value)
	return nil
}

func (s *inMemoryStore) Scan(_ context.Context, prefix string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for key, value := range s.records {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Record{Key: key, Value: clone(value)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
