// Package storage provides in-memory history storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral servers

package storage

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/internal/dsa"
)

// InMemoryStorage implements HistoryStorage using an in-memory map.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu      sync.RWMutex
	records map[string]Record
	ids     *dsa.Trie[struct{}]
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		records: make(map[string]Record),
		ids:     dsa.NewTrie[struct{}](),
	}
}

// Save stores a record.
func (s *InMemoryStorage) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = copyRecord(rec)
	s.ids.Insert(rec.ID, struct{}{})
	return nil
}

// Get loads one record.
func (s *InMemoryStorage) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

// List returns the newest records first.
func (s *InMemoryStorage) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes one record.
func (s *InMemoryStorage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	s.ids.Delete(id)
	return nil
}

// Clear removes every record.
func (s *InMemoryStorage) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.records))
	clear(s.records)
	s.ids.Clear()
	return n, nil
}

// IDsWithPrefix returns ids starting with prefix.
func (s *InMemoryStorage) IDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ids.WithPrefix(prefix, limit), nil
}

// copyRecord copies the result map so callers cannot mutate stored state.
func copyRecord(rec Record) Record {
	if rec.Result != nil {
		rec.Result = analysis.Result(maps.Clone(map[string]any(rec.Result)))
	}
	return rec
}

// Verify InMemoryStorage implements HistoryStorage
var _ HistoryStorage = (*InMemoryStorage)(nil)
