package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"prilythic/internal/domain"
	"prilythic/internal/panel"
	"prilythic/internal/storage"
)

// Size and seed of the fixture panel loaded by LoadFixtures.
const (
	FixtureMonths = 48
	FixtureSeed   = 42
)

var fixtureProducts = []struct {
	code  string
	name  string
	units string
	base  float64
	trend float64 // per month
}{
	{"c_beans", "Beans", "kg", 100, 0.40},
	{"c_maize", "Maize", "kg", 45, 0.15},
	{"c_oil", "Vegetable Oil", "L", 180, 0.90},
	{"c_rice", "Rice", "kg", 70, 0.25},
}

var fixtureMarkets = []string{"Central", "North"}

// FixturePanel returns a synthetic wide panel of monthly prices with trend,
// yearly seasonality and seeded noise. It is deterministic for a given
// months/seed pair and carries a few missing cells like the real exports.
func FixturePanel(months int, seed int64) *panel.WideTable {
	rnd := rand.New(rand.NewSource(seed))

	header := []string{"country", panel.DefaultMarketColumn, panel.DefaultDateColumn}
	for _, p := range fixtureProducts {
		header = append(header, p.code)
	}

	start := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	var rows [][]string
	for m := 0; m < months; m++ {
		date := start.AddDate(0, m, 0).Format(domain.DateLayout)
		season := math.Sin(2 * math.Pi * float64(m%12) / 12)
		for mi, market := range fixtureMarkets {
			row := []string{"Testland", market, date}
			for pi, p := range fixtureProducts {
				if (m+mi+pi)%29 == 28 {
					row = append(row, "NA")
					continue
				}
				premium := 1 + 0.05*float64(mi)
				price := (p.base + p.trend*float64(m)) * (1 + 0.08*season) * premium
				price += rnd.NormFloat64() * p.base * 0.01
				row = append(row, strconv.FormatFloat(math.Round(price*100)/100, 'f', 2, 64))
			}
			rows = append(rows, row)
		}
	}
	return &panel.WideTable{Header: header, Rows: rows}
}

// FixtureTickers returns the ticker reference rows of the fixture products.
func FixtureTickers() []*domain.Ticker {
	out := make([]*domain.Ticker, 0, len(fixtureProducts))
	for _, p := range fixtureProducts {
		out = append(out, &domain.Ticker{Code: p.code, FullName: p.name, Units: p.units})
	}
	return out
}

// LoadFixtures populates stores with the fixture panel and tickers.
// Loading twice is a no-op when a ledger is given.
func LoadFixtures(
	ctx context.Context,
	pointStore storage.PricePointStore,
	tickerStore storage.TickerStore,
	ledger storage.ImportLedger,
	now time.Time,
) error {
	if tickerStore != nil {
		if _, err := StoreTickers(ctx, tickerStore, FixtureTickers()); err != nil {
			return err
		}
	}

	table := FixturePanel(FixtureMonths, FixtureSeed)
	points, err := panel.Melt(table, panel.DefaultMeltConfig())
	if err != nil {
		return fmt.Errorf("melt fixture panel: %w", err)
	}
	_, err = ImportPanel(ctx, pointStore, ledger, TableChecksum(table), "fixtures", points, nil, now)
	return err
}
