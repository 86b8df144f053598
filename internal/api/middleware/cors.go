package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfigProvider is satisfied by the api package's CORS configuration.
// The interface avoids an import cycle with internal/api/config.go.
type CORSConfigProvider interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS writes the cross-origin headers from config and short-circuits
// OPTIONS preflight requests with 204.
func CORS(config CORSConfigProvider) func(http.Handler) http.Handler {
	allowedOrigins := config.GetAllowedOrigins()
	methods := strings.Join(config.GetAllowedMethods(), ", ")
	headers := strings.Join(config.GetAllowedHeaders(), ", ")
	maxAge := config.GetMaxAge()

	wildcard := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()

			switch {
			case wildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(allowedOrigins, r.Header.Get("Origin")):
				h.Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
			}

			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}

			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}

			if maxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
