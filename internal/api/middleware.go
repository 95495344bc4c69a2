package api

import (
	"errors"
	"net/http"
)

var errTooManyRequests = errors.New("too many requests")

// limit rejects requests above the configured rate with 429.
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			if s.metrics != nil {
				s.metrics.RateLimited.Inc()
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
