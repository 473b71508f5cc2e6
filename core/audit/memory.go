package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]Record{}}
}

// Append adds r to the tender's history.
func (s *MemoryStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.TenderID] = append(s.data[r.TenderID], r)
	return nil
}

// List returns the tender's records in append order.
func (s *MemoryStore) List(_ context.Context, tenderID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.data[tenderID]...), nil
}
