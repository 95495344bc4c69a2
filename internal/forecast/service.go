// Package forecast turns a raw price series into a next-month forecast using a
// persisted model and scaler.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"prilythic/internal/artifact"
	"prilythic/internal/domain"
	"prilythic/internal/observability"
)

// ModelProvider returns the artifact bundle serving a product.
// *registry.Cache implements it.
type ModelProvider interface {
	Get(ctx context.Context, productCode string) (*artifact.Bundle, error)
}

// Service produces forecasts. It is safe for concurrent use.
type Service struct {
	models  ModelProvider
	source  SeriesSource
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewService creates a forecasting service. source may be nil when callers
// always pass series explicitly.
func NewService(models ModelProvider, source SeriesSource, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{models: models, source: source, logger: logger, metrics: metrics}
}

// Forecast predicts next month's price of product from series.
func (s *Service) Forecast(ctx context.Context, product string, series []domain.SeriesPoint) (f *domain.Forecast, err error) {
	start := time.Now()
	defer func() { s.record(err, time.Since(start)) }()

	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no observations for %s", domain.ErrInsufficientHistory, product)
	}

	bundle, err := s.models.Get(ctx, product)
	if err != nil {
		return nil, err
	}

	asm, err := NewAssembler(bundle.Schema()).Assemble(product, series)
	if err != nil {
		return nil, err
	}
	x, err := bundle.Scaler.TransformValues(asm.Values)
	if err != nil {
		return nil, fmt.Errorf("scale features for %s: %w", product, err)
	}
	pred := bundle.Model.PredictRow(x)

	history := trailing(asm.Series, HistoryLength)
	hist := make([]domain.HistoricalPoint, len(history))
	for i, p := range history {
		hist[i] = domain.HistoricalPoint{ProductCode: product, Date: p.Date, Price: p.Price}
	}

	if asm.ReducedConfidence {
		s.logger.Debug("forecast with short history",
			zap.String("product", product),
			zap.Int("observations", len(asm.Series)),
			zap.Int("lag_horizon", bundle.Schema().LagHorizon))
	}

	return &domain.Forecast{
		Product:            product,
		DisplayName:        domain.DisplayName(product),
		Historical:         hist,
		PredictedNextMonth: Round2(pred),
		NextMonth:          asm.Date.Format(domain.DateLayout),
		Observations:       len(asm.Series),
		ReducedConfidence:  asm.ReducedConfidence,
	}, nil
}

// ForecastMarket loads the series of product in market from the configured
// source and forecasts it. An empty market uses every market.
func (s *Service) ForecastMarket(ctx context.Context, product, market string) (*domain.Forecast, error) {
	if s.source == nil {
		return nil, errors.New("forecast service has no series source")
	}
	series, err := s.source.Series(ctx, product, market)
	if err != nil {
		return nil, err
	}
	return s.Forecast(ctx, product, series)
}

// Products lists the products the source can serve.
func (s *Service) Products(ctx context.Context) ([]string, error) {
	if s.source == nil {
		return nil, errors.New("forecast service has no series source")
	}
	return s.source.Products(ctx)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *Service) record(err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordForecast(Status(err), d.Seconds())
}

// Status classifies a forecast outcome for metrics and logs.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownProduct):
		return "unknown_product"
	case errors.Is(err, domain.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, domain.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, domain.ErrInputNotFound):
		return "not_found"
	default:
		return "error"
	}
}
