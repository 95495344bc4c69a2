package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"prilythic/internal/domain"
	"prilythic/internal/panel"
	"prilythic/internal/storage"
)

// SeriesSource supplies historical price series for serving.
type SeriesSource interface {
	// Series returns the (date, price) observations of product. An empty
	// market selects every market.
	Series(ctx context.Context, product, market string) ([]domain.SeriesPoint, error)
	// Products lists the product codes the source has prices for.
	Products(ctx context.Context) ([]string, error)
}

// PanelSource serves series straight from a wide panel loaded in memory.
type PanelSource struct {
	table   *panel.WideTable
	cfg     panel.MeltConfig
	layouts []string
}

// NewPanelSource wraps a wide table.
func NewPanelSource(table *panel.WideTable, cfg panel.MeltConfig, layouts []string) *PanelSource {
	return &PanelSource{table: table, cfg: cfg, layouts: layouts}
}

func (s *PanelSource) Series(_ context.Context, product, market string) ([]domain.SeriesPoint, error) {
	series, err := panel.ProductSeries(s.table, product, market, s.cfg, s.layouts)
	if errors.Is(err, domain.ErrInputNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrUnknownProduct, err)
	}
	return series, err
}

func (s *PanelSource) Products(_ context.Context) ([]string, error) {
	codes := s.cfg.ProductCodes
	if len(codes) == 0 {
		codes = panel.DetectProductCodes(s.table.Header, domain.ProductPrefix)
	}
	out := append([]string(nil), codes...)
	sort.Strings(out)
	return out, nil
}

// StoreSource serves series from a price point store.
type StoreSource struct {
	store storage.PricePointStore
}

// NewStoreSource wraps a price point store.
func NewStoreSource(store storage.PricePointStore) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) Series(ctx context.Context, product, market string) ([]domain.SeriesPoint, error) {
	points, err := s.store.GetSeries(ctx, product, market)
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", product, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w %q: no stored prices", ErrUnknownProduct, product)
	}
	out := make([]domain.SeriesPoint, len(points))
	for i, p := range points {
		out[i] = domain.SeriesPoint{Date: p.Date, Price: p.Price}
	}
	return out, nil
}

func (s *StoreSource) Products(ctx context.Context) ([]string, error) {
	return s.store.ListProducts(ctx)
}
