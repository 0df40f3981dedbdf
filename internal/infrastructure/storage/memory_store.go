package storage

import (
	"context"
	"sync"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// MemoryStore keeps ledger entries in process memory only.
type MemoryStore struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
}

var _ ports.LedgerStore = (*MemoryStore)(nil)

// NewMemoryStore optionally seeds the store.
func NewMemoryStore(seed ...domain.LedgerEntry) *MemoryStore {
	return &MemoryStore{entries: append([]domain.LedgerEntry(nil), seed...)}
}

func (s *MemoryStore) LoadAll(context.Context) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LedgerEntry(nil), s.entries...), nil
}

func (s *MemoryStore) Append(_ context.Context, entry domain.LedgerEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Flush(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Entries returns what was appended so far.
func (s *MemoryStore) Entries() []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LedgerEntry(nil), s.entries...)
}
