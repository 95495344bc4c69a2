package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

// TrainingRunStore is an in-memory implementation of storage.TrainingRunStore.
type TrainingRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TrainingRun // keyed by run_id
}

// NewTrainingRunStore creates a new in-memory training run store.
func NewTrainingRunStore() *TrainingRunStore {
	return &TrainingRunStore{
		data: make(map[string]*domain.TrainingRun),
	}
}

func copyRun(r *domain.TrainingRun) *domain.TrainingRun {
	c := *r
	c.TopImportances = slices.Clone(r.TopImportances)
	return &c
}

// Insert adds a completed run. Returns ErrDuplicateKey if run_id exists.
func (s *TrainingRunStore) Insert(_ context.Context, r *domain.TrainingRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	c := copyRun(r)
	c.CreatedAt = time.Now().UnixMilli()
	s.data[r.RunID] = c
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *TrainingRunStore) GetByID(_ context.Context, runID string) (*domain.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRun(r), nil
}

// GetLatest retrieves the most recently finished run of a variant.
func (s *TrainingRunStore) GetLatest(ctx context.Context, variant string) (*domain.TrainingRun, error) {
	runs, err := s.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if variant == "" || r.Variant == variant {
			return r, nil
		}
	}
	return nil, storage.ErrNotFound
}

// List retrieves up to limit runs, newest first.
func (s *TrainingRunStore) List(_ context.Context, limit int) ([]*domain.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TrainingRun, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, copyRun(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].FinishedAt != result[j].FinishedAt {
			return result[i].FinishedAt > result[j].FinishedAt
		}
		return result[i].RunID < result[j].RunID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.TrainingRunStore = (*TrainingRunStore)(nil)
