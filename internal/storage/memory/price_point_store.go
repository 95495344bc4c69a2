package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

// PricePointStore is an in-memory implementation of storage.PricePointStore.
type PricePointStore struct {
	mu     sync.RWMutex
	points []*domain.PricePoint // insertion order
}

// NewPricePointStore creates a new in-memory price point store.
func NewPricePointStore() *PricePointStore {
	return &PricePointStore{}
}

func copyPoint(p *domain.PricePoint) *domain.PricePoint {
	c := *p
	c.Identifiers = maps.Clone(p.Identifiers)
	return &c
}

// InsertBulk appends points. Fails the entire batch on an invalid point.
func (s *PricePointStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p == nil || p.ProductCode == "" || p.Date.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		s.points = append(s.points, copyPoint(p))
	}
	return nil
}

// GetSeries retrieves the points of a product ordered by date ASC.
func (s *PricePointStore) GetSeries(_ context.Context, productCode, marketID string) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.points {
		if p.ProductCode != productCode {
			continue
		}
		if marketID != "" && p.MarketID != marketID {
			continue
		}
		result = append(result, copyPoint(p))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

// GetAll retrieves every point in insertion order.
func (s *PricePointStore) GetAll(_ context.Context) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PricePoint, len(s.points))
	for i, p := range s.points {
		result[i] = copyPoint(p)
	}
	return result, nil
}

// ListProducts returns the distinct product codes, sorted.
func (s *PricePointStore) ListProducts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range s.points {
		seen[p.ProductCode] = struct{}{}
	}
	return sortedKeys(seen), nil
}

// ListMarkets returns the distinct markets of a product, sorted.
func (s *PricePointStore) ListMarkets(_ context.Context, productCode string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range s.points {
		if p.ProductCode == productCode {
			seen[p.MarketID] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ storage.PricePointStore = (*PricePointStore)(nil)
