package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

func pp(product, market string, month time.Month, day int, price float64) *domain.PricePoint {
	d := time.Date(2024, month, day, 0, 0, 0, 0, time.UTC)
	return &domain.PricePoint{
		ProductCode: product,
		MarketID:    market,
		RawDate:     d.Format(domain.DateLayout),
		Date:        d,
		Price:       price,
		Identifiers: map[string]string{"country": "Kenya"},
	}
}

func TestPricePointStore_InsertAndGetSeries(t *testing.T) {
	store := NewPricePointStore()
	ctx := context.Background()

	points := []*domain.PricePoint{
		pp("c_beans", "Nairobi", time.March, 1, 103),
		pp("c_beans", "Nairobi", time.January, 1, 101),
		pp("c_beans", "Mombasa", time.February, 1, 99),
		pp("c_rice", "Nairobi", time.January, 1, 50),
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	series, err := store.GetSeries(ctx, "c_beans", "Nairobi")
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 points, got %d", len(series))
	}
	if series[0].Price != 101 || series[1].Price != 103 {
		t.Errorf("expected date order [101 103], got [%v %v]", series[0].Price, series[1].Price)
	}

	all, err := store.GetSeries(ctx, "c_beans", "")
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 points across markets, got %d", len(all))
	}
}

func TestPricePointStore_DuplicatesKeptInInsertionOrder(t *testing.T) {
	store := NewPricePointStore()
	ctx := context.Background()

	first := pp("c_beans", "Nairobi", time.January, 1, 100)
	second := pp("c_beans", "Nairobi", time.January, 1, 200)
	if err := store.InsertBulk(ctx, []*domain.PricePoint{first, second}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	series, _ := store.GetSeries(ctx, "c_beans", "Nairobi")
	if len(series) != 2 {
		t.Fatalf("expected duplicates to be kept, got %d points", len(series))
	}
	if series[0].Price != 100 || series[1].Price != 200 {
		t.Errorf("expected insertion order on ties, got [%v %v]", series[0].Price, series[1].Price)
	}
}

func TestPricePointStore_InvalidInput(t *testing.T) {
	store := NewPricePointStore()
	ctx := context.Background()

	noDate := &domain.PricePoint{ProductCode: "c_beans", Price: 1}
	err := store.InsertBulk(ctx, []*domain.PricePoint{pp("c_beans", "X", time.May, 1, 1), noDate})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 0 {
		t.Errorf("expected failed batch to store nothing, got %d", len(all))
	}
}

func TestPricePointStore_ReturnsCopies(t *testing.T) {
	store := NewPricePointStore()
	ctx := context.Background()

	p := pp("c_beans", "Nairobi", time.January, 1, 100)
	_ = store.InsertBulk(ctx, []*domain.PricePoint{p})
	p.Price = 1
	p.Identifiers["country"] = "changed"

	got, _ := store.GetAll(ctx)
	if got[0].Price != 100 || got[0].Identifiers["country"] != "Kenya" {
		t.Errorf("store shares memory with caller: %+v", got[0])
	}

	got[0].Identifiers["country"] = "mutated"
	again, _ := store.GetAll(ctx)
	if again[0].Identifiers["country"] != "Kenya" {
		t.Error("returned point shares identifiers with store")
	}
}

func TestPricePointStore_ListProductsAndMarkets(t *testing.T) {
	store := NewPricePointStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []*domain.PricePoint{
		pp("c_rice", "Nairobi", time.January, 1, 1),
		pp("c_beans", "Nairobi", time.January, 1, 1),
		pp("c_beans", "Kisumu", time.January, 1, 1),
		pp("c_beans", "Nairobi", time.February, 1, 1),
	})

	products, err := store.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 2 || products[0] != "c_beans" || products[1] != "c_rice" {
		t.Errorf("unexpected products %v", products)
	}

	markets, _ := store.ListMarkets(ctx, "c_beans")
	if len(markets) != 2 || markets[0] != "Kisumu" || markets[1] != "Nairobi" {
		t.Errorf("unexpected markets %v", markets)
	}
}
