package memory

import (
	"context"
	"errors"
	"testing"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

func TestTickerStore_InsertAndGetByCode(t *testing.T) {
	store := NewTickerStore()
	ctx := context.Background()

	ticker := &domain.Ticker{Code: "c_beans", FullName: "Beans (dry)", Units: "KG"}
	if err := store.Insert(ctx, ticker); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByCode(ctx, "c_beans")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.FullName != "Beans (dry)" || got.Units != "KG" {
		t.Errorf("unexpected ticker %+v", got)
	}
	if got.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}
}

func TestTickerStore_Errors(t *testing.T) {
	store := NewTickerStore()
	ctx := context.Background()

	_ = store.Insert(ctx, &domain.Ticker{Code: "c_beans"})
	if err := store.Insert(ctx, &domain.Ticker{Code: "c_beans"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Ticker{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.GetByCode(ctx, "c_none"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTickerStore_ListSorted(t *testing.T) {
	store := NewTickerStore()
	ctx := context.Background()

	for _, code := range []string{"c_rice", "c_beans", "c_maize"} {
		_ = store.Insert(ctx, &domain.Ticker{Code: code})
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"c_beans", "c_maize", "c_rice"}
	for i, tk := range list {
		if tk.Code != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], tk.Code)
		}
	}
}
