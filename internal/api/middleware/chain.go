package middleware

import (
	"log/slog"
	"net/http"
)

// Option wraps a handler with one middleware layer.
type Option func(http.Handler) http.Handler

// Apply composes options around handler. The first option ends up outermost,
// so requests flow through options in the order they are listed:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithCorrelationID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithAuth(auth, logger),
//	    middleware.WithRateLimit(limiter, logger),
//	    middleware.WithRequestLogger(logger),
//	    middleware.WithCORS(corsConfig),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// noop leaves the handler untouched, for options whose dependency is not
// configured.
func noop(next http.Handler) http.Handler { return next }

// WithCorrelationID tags requests with a correlation ID.
func WithCorrelationID() Option {
	return CorrelationID()
}

// WithRecovery converts handler panics into 500 responses.
func WithRecovery(logger *slog.Logger) Option {
	return Recovery(logger)
}

// WithAuth enforces API key authentication. A nil authenticator disables the
// layer entirely.
func WithAuth(auth *Authenticator, logger *slog.Logger) Option {
	if auth == nil {
		return noop
	}

	return Authenticate(auth, logger)
}

// WithRateLimit enforces per-client request limits. A nil limiter disables
// the layer entirely.
func WithRateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return noop
	}

	return RateLimit(limiter, logger)
}

// WithRequestLogger logs one line per completed request.
func WithRequestLogger(logger *slog.Logger) Option {
	return RequestLogger(logger)
}

// WithCORS writes cross-origin headers and answers preflights.
func WithCORS(config CORSConfigProvider) Option {
	return CORS(config)
}
