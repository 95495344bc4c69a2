// Package api exposes forecasts over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"prilythic/internal/domain"
	"prilythic/internal/forecast"
	"prilythic/internal/observability"
	"prilythic/internal/storage"
)

// Forecaster serves forecasts. *forecast.Service implements it.
type Forecaster interface {
	ForecastMarket(ctx context.Context, product, market string) (*domain.Forecast, error)
	Products(ctx context.Context) ([]string, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// healthTimeout bounds every health check.
const healthTimeout = 2 * time.Second

// Server holds the HTTP handlers.
type Server struct {
	forecaster     Forecaster
	tickers        storage.TickerStore
	checks         map[string]HealthCheck
	limiter        *rate.Limiter
	metricsHandler http.Handler
	logger         *zap.Logger
	metrics        *observability.Metrics
}

// NewServer creates a server without rate limiting.
func NewServer(f Forecaster, logger *zap.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		forecaster:     f,
		checks:         make(map[string]HealthCheck),
		metricsHandler: observability.Handler(),
		logger:         logger,
		metrics:        metrics,
	}
}

// WithRateLimit admits rps requests per second with the given burst on the
// forecast routes. rps <= 0 disables limiting.
func (s *Server) WithRateLimit(rps float64, burst int) *Server {
	if rps <= 0 {
		s.limiter = nil
		return s
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return s
}

// WithTickers enriches /products with ticker names and units.
func (s *Server) WithTickers(store storage.TickerStore) *Server {
	s.tickers = store
	return s
}

// WithHealthCheck adds a named dependency to /health.
func (s *Server) WithHealthCheck(name string, check HealthCheck) *Server {
	s.checks[name] = check
	return s
}

// WithMetricsHandler replaces the /metrics handler, e.g. for a custom registry.
func (s *Server) WithMetricsHandler(h http.Handler) *Server {
	s.metricsHandler = h
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /predict/{product}", s.limit(http.HandlerFunc(s.handlePredict)))
	mux.Handle("GET /products", s.limit(http.HandlerFunc(s.handleProducts)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metricsHandler)
	return mux
}

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a forecast error to an HTTP status code.
func statusFor(err error) int {
	switch forecast.Status(err) {
	case "unknown_product", "insufficient_history":
		return http.StatusBadRequest
	case "schema_mismatch":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	product := r.PathValue("product")
	market := r.URL.Query().Get("market")

	f, err := s.forecaster.ForecastMarket(r.Context(), product, market)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.logger.Error("forecast failed",
				zap.String("product", product),
				zap.String("market", market),
				zap.Error(err))
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// ProductInfo is one entry of /products.
type ProductInfo struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Units string `json:"units,omitempty"`
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	codes, err := s.forecaster.Products(r.Context())
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	known := make(map[string]*domain.Ticker)
	if s.tickers != nil {
		tickers, err := s.tickers.List(r.Context())
		if err != nil {
			s.logger.Warn("list tickers failed", zap.Error(err))
		}
		for _, t := range tickers {
			known[t.Code] = t
		}
	}

	out := make([]ProductInfo, 0, len(codes))
	for _, code := range codes {
		info := ProductInfo{Code: code, Name: domain.DisplayName(code)}
		if t, ok := known[code]; ok {
			if t.FullName != "" {
				info.Name = t.FullName
			}
			info.Units = t.Units
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	writeJSON(w, http.StatusOK, out)
}

// HealthResponse is the JSON body of /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	code := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
