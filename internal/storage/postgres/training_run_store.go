package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

// TrainingRunStore implements storage.TrainingRunStore using PostgreSQL.
// Params, evaluation and importances are stored as JSONB.
type TrainingRunStore struct {
	pool *Pool
}

// NewTrainingRunStore creates a new TrainingRunStore.
func NewTrainingRunStore(pool *Pool) *TrainingRunStore {
	return &TrainingRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TrainingRunStore = (*TrainingRunStore)(nil)

const selectTrainingRuns = `
	SELECT run_id, variant, started_at, finished_at, row_count, dropped_dates,
		lag_horizon, rolling_window, params, evaluation, top_importances,
		artifact_dir, schema_hash, created_at
	FROM training_runs
`

// Insert adds a completed run. Returns ErrDuplicateKey if run_id exists.
func (s *TrainingRunStore) Insert(ctx context.Context, r *domain.TrainingRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	evaluation, err := json.Marshal(r.Evaluation)
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}
	importances, err := json.Marshal(r.TopImportances)
	if err != nil {
		return fmt.Errorf("encode importances: %w", err)
	}
	params := r.Params
	if params == "" {
		params = "{}"
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO training_runs (
			run_id, variant, started_at, finished_at, row_count, dropped_dates,
			lag_horizon, rolling_window, params, evaluation, top_importances,
			artifact_dir, schema_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11::jsonb, $12, $13)
	`,
		r.RunID, r.Variant, r.StartedAt, r.FinishedAt, r.Rows, r.DroppedDates,
		r.LagHorizon, r.RollingWindow, params, string(evaluation), string(importances),
		r.ArtifactDir, r.SchemaHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert training run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *TrainingRunStore) GetByID(ctx context.Context, runID string) (*domain.TrainingRun, error) {
	r, err := scanTrainingRun(s.pool.QueryRow(ctx, selectTrainingRuns+`WHERE run_id = $1`, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get training run: %w", err)
	}
	return r, nil
}

// GetLatest retrieves the most recently finished run of a variant.
func (s *TrainingRunStore) GetLatest(ctx context.Context, variant string) (*domain.TrainingRun, error) {
	row := s.pool.QueryRow(ctx, selectTrainingRuns+`
		WHERE $1 = '' OR variant = $1
		ORDER BY finished_at DESC, run_id ASC
		LIMIT 1
	`, variant)

	r, err := scanTrainingRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest training run: %w", err)
	}
	return r, nil
}

// List retrieves up to limit runs, newest first.
func (s *TrainingRunStore) List(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	query := selectTrainingRuns + `ORDER BY finished_at DESC, run_id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list training runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.TrainingRun
	for rows.Next() {
		r, err := scanTrainingRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training runs: %w", err)
	}
	return runs, nil
}

func scanTrainingRun(row pgx.Row) (*domain.TrainingRun, error) {
	var r domain.TrainingRun
	var evaluation, importances []byte

	err := row.Scan(
		&r.RunID, &r.Variant, &r.StartedAt, &r.FinishedAt, &r.Rows, &r.DroppedDates,
		&r.LagHorizon, &r.RollingWindow, &r.Params, &evaluation, &importances,
		&r.ArtifactDir, &r.SchemaHash, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(evaluation, &r.Evaluation); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	if err := json.Unmarshal(importances, &r.TopImportances); err != nil {
		return nil, fmt.Errorf("decode importances: %w", err)
	}
	return &r, nil
}
