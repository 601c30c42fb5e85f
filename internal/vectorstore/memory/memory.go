// Package memory is an in-process vector collection using brute-force cosine
// similarity. Nothing is persisted.
package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"docqa/internal/vectorstore"
)

// Storage is a simple in-memory vector store.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []vectorstore.Record
	ids       map[string]struct{}
	sources   map[string]int
}

var _ vectorstore.Collection = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{ids: map[string]struct{}{}, sources: map[string]int{}}
}

func (s *Storage) Insert(ctx context.Context, records []vectorstore.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, r := range records {
		if r.ID == "" {
			return 0, errors.New("record without id")
		}
		if len(r.Vector) == 0 {
			return 0, fmt.Errorf("record %s: empty vector", r.ID)
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return 0, fmt.Errorf("record %s: %w: got %d, want %d", r.ID, vectorstore.ErrDimensionMismatch, len(r.Vector), dim)
		}
	}
	s.dimension = dim

	added := 0
	for _, r := range records {
		if _, dup := s.ids[r.ID]; dup {
			continue
		}
		s.ids[r.ID] = struct{}{}
		r.Metadata = r.Metadata.Clone()
		s.records = append(s.records, r)
		s.sources[vectorstore.SourceOf(r.Metadata)]++
		added++
	}
	return added, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.records) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	hits := make([]vectorstore.ScoredRecord, 0, len(s.records))
	for _, r := range s.records {
		if !vectorstore.Matches(r.Metadata, filter) {
			continue
		}
		hits = append(hits, vectorstore.ScoredRecord{Record: r, Score: vectorstore.Cosine(r.Vector, vector)})
	}
	return vectorstore.TopK(hits, k), nil
}

func (s *Storage) Get(ctx context.Context, ids []string) ([]vectorstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []vectorstore.Record
	for _, r := range s.records {
		if _, ok := want[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) SourceCounts(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.sources))
	for k, v := range s.sources {
		out[k] = v
	}
	return out, nil
}

func (s *Storage) Drop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.records = nil
	s.ids = map[string]struct{}{}
	s.sources = map[string]int{}
	return nil
}

func (s *Storage) Close() error { return nil }

// Registry hands out one Storage per (persistDir, collection) so reopening a
// collection in the same process sees its records.
type Registry struct {
	mu          sync.Mutex
	collections map[string]*Storage
}

func NewRegistry() *Registry {
	return &Registry{collections: map[string]*Storage{}}
}

// Open satisfies vectorstore.Opener.
func (r *Registry) Open(ctx context.Context, persistDir, collection string) (vectorstore.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, errors.New("collection name required")
	}
	key := filepath.Join(persistDir, collection)
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.collections[key]
	if !ok {
		s = NewStorage()
		r.collections[key] = s
	}
	return s, nil
}
