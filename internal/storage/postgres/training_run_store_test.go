package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

func testRun(id, variant string, finished int64) *domain.TrainingRun {
	return &domain.TrainingRun{
		RunID:         id,
		Variant:       variant,
		StartedAt:     finished - 5000,
		FinishedAt:    finished,
		Rows:          480,
		DroppedDates:  3,
		LagHorizon:    12,
		RollingWindow: 6,
		Params:        `{"n_estimators": 200, "max_depth": 20}`,
		Evaluation: domain.Evaluation{
			MSE: 4, RMSE: 2, MAE: 1.5, R2: 0.91, MAPE: 3.2, MaxError: 7,
			AvgTrainPrice: 100, MAEPct: 1.5, Band: domain.QualityExcellent,
			TrainRows: 384, TestRows: 96,
		},
		TopImportances: []domain.FeatureImportance{
			{Feature: "price_lag1", Importance: 0.7},
			{Feature: "price_roll6", Importance: 0.2},
		},
		ArtifactDir: "/var/lib/prilythic/default",
		SchemaHash:  "abc123",
	}
}

func TestTrainingRunStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRunStore(pool)

	want := testRun("run-1", domain.VariantFixed, 1700000000000)
	require.NoError(t, store.Insert(ctx, want))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, want.Variant, got.Variant)
	assert.Equal(t, want.Rows, got.Rows)
	assert.Equal(t, want.DroppedDates, got.DroppedDates)
	assert.Equal(t, want.Evaluation, got.Evaluation)
	assert.Equal(t, want.TopImportances, got.TopImportances)
	assert.JSONEq(t, want.Params, got.Params)
	assert.NotZero(t, got.CreatedAt)

	assert.ErrorIs(t, store.Insert(ctx, want), storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTrainingRunStore_LatestAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRunStore(pool)

	_, err := store.GetLatest(ctx, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Insert(ctx, testRun("old", domain.VariantFixed, 1000)))
	require.NoError(t, store.Insert(ctx, testRun("tuned", domain.VariantTuned, 3000)))
	require.NoError(t, store.Insert(ctx, testRun("new", domain.VariantFixed, 2000)))

	latest, err := store.GetLatest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "tuned", latest.RunID)

	fixed, err := store.GetLatest(ctx, domain.VariantFixed)
	require.NoError(t, err)
	assert.Equal(t, "new", fixed.RunID)

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tuned", list[0].RunID)
	assert.Equal(t, "new", list[1].RunID)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
