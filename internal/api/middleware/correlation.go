// Package middleware provides HTTP middleware components for the X-Ray API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// correlationHeader is read from the request and echoed on every response so
// clients can stitch their logs to ours.
const correlationHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// CorrelationID tags each request with an identifier: the caller's
// X-Correlation-ID when present, a fresh UUID otherwise. The identifier is
// echoed in the response header and stored in the request context for the
// downstream middleware and handlers.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(correlationHeader)
			if id == "" {
				id = uuid.NewString()
			}

			w.Header().Set(correlationHeader, id)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID returns the request's correlation ID, or "unknown" when
// the middleware did not run.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}

	return "unknown"
}
