package accounts

import (
	"context"
	"sync"
)

// MemoryStore keeps records in-memory for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Account
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends a record.
func (s *MemoryStore) Record(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.Categories = append([]Category(nil), account.Categories...)
	s.records = append(s.records, account)
	return nil
}

// List returns up to limit records of a category in insertion order.
func (s *MemoryStore) List(ctx context.Context, category Category, limit int) ([]Account, error) {
	return s.collect(ctx, category, normalizeLimit(limit))
}

// All returns every record of a category.
func (s *MemoryStore) All(ctx context.Context, category Category) ([]Account, error) {
	return s.collect(ctx, category, 0)
}

func (s *MemoryStore) collect(_ context.Context, category Category, limit int) ([]Account, error) {
	if _, ok := ParseCategory(string(category)); !ok {
		return nil, ErrUnknownCategory
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0)
	for _, rec := range s.records {
		if !rec.In(category) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
