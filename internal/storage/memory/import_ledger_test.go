package memory

import (
	"context"
	"errors"
	"testing"

	"prilythic/internal/storage"
)

func TestImportLedger(t *testing.T) {
	ledger := NewImportLedger()
	ctx := context.Background()

	seen, err := ledger.IsImported(ctx, "abc")
	if err != nil || seen {
		t.Fatalf("expected unseen checksum, got %v (err %v)", seen, err)
	}

	if err := ledger.MarkImported(ctx, &storage.PanelImport{Checksum: "abc", Source: "wfp.csv", Points: 10, ImportedAt: 2}); err != nil {
		t.Fatalf("MarkImported failed: %v", err)
	}
	if err := ledger.MarkImported(ctx, &storage.PanelImport{Checksum: "abc"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	_ = ledger.MarkImported(ctx, &storage.PanelImport{Checksum: "def", ImportedAt: 1})

	seen, _ = ledger.IsImported(ctx, "abc")
	if !seen {
		t.Error("expected checksum to be recorded")
	}

	list, _ := ledger.List(ctx)
	if len(list) != 2 || list[0].Checksum != "def" {
		t.Errorf("expected oldest first, got %+v", list)
	}

	if _, err := ledger.IsImported(ctx, ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
