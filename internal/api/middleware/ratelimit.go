package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether one more request may proceed. The interface
// exists so a distributed implementation can replace the in-memory token
// bucket without touching the middleware.
type RateLimiter interface {
	Allow() bool
}

// InMemoryRateLimiter is a single global token bucket built on
// golang.org/x/time/rate. Good for single-node deployments.
type InMemoryRateLimiter struct {
	global *rate.Limiter
}

// NewInMemoryRateLimiter builds the bucket from config. Burst defaults to
// twice the sustained rate when not set explicitly.
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	burst := config.GlobalBurst
	if burst <= 0 {
		burst = config.GlobalRPS * 2
	}

	return &InMemoryRateLimiter{
		global: rate.NewLimiter(rate.Limit(config.GlobalRPS), burst),
	}
}

// Allow reports whether the bucket has a token available.
func (rl *InMemoryRateLimiter) Allow() bool {
	return rl.global.Allow()
}

// RateLimit rejects requests over the limit with a 429 problem response.
// Registered public endpoints bypass the limiter so health probes keep
// answering under ingest load.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			if limiter.Allow() {
				next.ServeHTTP(w, r)

				return
			}

			correlationID := GetCorrelationID(r.Context())
			detail := "Rate limit exceeded. Please retry after some time."

			if err := writeRFC7807Error(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
				logger.Error("failed to write rate limit response",
					slog.String("correlation_id", correlationID),
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
			}
		})
	}
}
