package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

// TickerStore is an in-memory implementation of storage.TickerStore.
type TickerStore struct {
	mu     sync.RWMutex
	byCode map[string]*domain.Ticker
}

// NewTickerStore creates a new in-memory ticker store.
func NewTickerStore() *TickerStore {
	return &TickerStore{
		byCode: make(map[string]*domain.Ticker),
	}
}

// Insert adds a ticker. Returns ErrDuplicateKey if the code already exists.
func (s *TickerStore) Insert(_ context.Context, t *domain.Ticker) error {
	if t == nil || t.Code == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[t.Code]; exists {
		return storage.ErrDuplicateKey
	}

	tickerCopy := *t
	tickerCopy.CreatedAt = time.Now().UnixMilli()
	s.byCode[t.Code] = &tickerCopy
	return nil
}

// GetByCode retrieves a ticker by code. Returns ErrNotFound if not exists.
func (s *TickerStore) GetByCode(_ context.Context, code string) (*domain.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byCode[code]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tickerCopy := *t
	return &tickerCopy, nil
}

// List retrieves all tickers ordered by code.
func (s *TickerStore) List(_ context.Context) ([]*domain.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Ticker, 0, len(s.byCode))
	for _, t := range s.byCode {
		tickerCopy := *t
		result = append(result, &tickerCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})

	return result, nil
}

var _ storage.TickerStore = (*TickerStore)(nil)
