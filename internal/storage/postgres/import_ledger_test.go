package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prilythic/internal/storage"
)

func TestImportLedger(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := NewImportLedger(pool)

	seen, err := ledger.IsImported(ctx, "sha-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.MarkImported(ctx, &storage.PanelImport{
		Checksum: "sha-1", Source: "wfp_food_prices.csv", Points: 1200, ImportedAt: 1700000000000,
	}))
	assert.ErrorIs(t, ledger.MarkImported(ctx, &storage.PanelImport{Checksum: "sha-1"}), storage.ErrDuplicateKey)

	seen, err = ledger.IsImported(ctx, "sha-1")
	require.NoError(t, err)
	assert.True(t, seen)

	list, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1200, list[0].Points)
}
