// Package middleware provides HTTP middleware components for the X-Ray API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/xray-io/xray/internal/config"
)

// publicEndpoints lists paths that skip authentication and rate limiting.
// Only health endpoints belong here; business endpoints always authenticate.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint marks a path as reachable without an API key.
// Called during route setup, before the server starts serving.
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

// Authentication failure modes.
var (
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey covers both malformed and unknown keys; one generic
	// error prevents key enumeration.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// AuthError pairs a failure mode with a human-readable message.
type AuthError struct {
	Type    error
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Type
}

// AuthConfig holds the accepted API keys. Keys are plaintext values compared
// in constant time; KeyHashes are bcrypt hashes for deployments that refuse
// to store plaintext. Both empty disables authentication (development only).
type AuthConfig struct {
	Keys      []string
	KeyHashes []string
}

// LoadAuthConfig reads XRAY_API_KEYS and XRAY_API_KEY_HASHES, each a
// comma-separated list.
func LoadAuthConfig() *AuthConfig {
	return &AuthConfig{
		Keys:      config.ParseCommaSeparatedList(config.GetEnvStr("XRAY_API_KEYS", "")),
		KeyHashes: config.ParseCommaSeparatedList(config.GetEnvStr("XRAY_API_KEY_HASHES", "")),
	}
}

// Authenticator validates bearer tokens against the configured key set.
type Authenticator struct {
	keys   [][]byte
	hashes [][]byte
}

// NewAuthenticator builds an Authenticator, or nil when no keys are
// configured so the middleware layer can be skipped entirely.
func NewAuthenticator(cfg *AuthConfig) *Authenticator {
	if cfg == nil || (len(cfg.Keys) == 0 && len(cfg.KeyHashes) == 0) {
		return nil
	}

	auth := &Authenticator{}

	for _, key := range cfg.Keys {
		auth.keys = append(auth.keys, []byte(key))
	}

	for _, hash := range cfg.KeyHashes {
		auth.hashes = append(auth.hashes, []byte(hash))
	}

	return auth
}

// Verify checks token against every configured key. All keys are checked
// even after a match so verification time does not reveal which key matched.
func (a *Authenticator) Verify(token string) bool {
	tokenBytes := []byte(token)
	matched := false

	for _, key := range a.keys {
		if subtle.ConstantTimeCompare(key, tokenBytes) == 1 {
			matched = true
		}
	}

	for _, hash := range a.hashes {
		if bcrypt.CompareHashAndPassword(hash, tokenBytes) == nil {
			matched = true
		}
	}

	return matched
}

// extractAPIKey pulls the key from X-Api-Key, falling back to
// Authorization: Bearer. Keys containing newlines are rejected outright to
// block header injection.
func extractAPIKey(r *http.Request) (string, bool) {
	key := r.Header.Get("X-Api-Key")

	if key == "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return "", false
		}

		key = strings.TrimPrefix(auth, "Bearer ")
	}

	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)

	return key, key != ""
}

// Authenticate rejects requests without a valid API key. Registered public
// endpoints pass straight through.
func Authenticate(auth *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrMissingAPIKey,
					Message: "Missing API key",
				})

				return
			}

			if !auth.Verify(apiKey) {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrInvalidAPIKey,
					Message: "Invalid API key",
				})

				return
			}

			logger.Info("API key authenticated",
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError logs the failure and answers with a 401 problem document.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	detail := err.Error()
	if writeErr := writeRFC7807Error(w, r, http.StatusUnauthorized, detail, correlationID); writeErr != nil {
		logger.Error("failed to write authentication error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("error", writeErr),
		)
	}
}

// writeRFC7807Error emits a problem+json response. The middleware package
// carries its own copy to avoid importing the api package.
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	detail,
	correlationID string,
) error {
	var title string

	switch statusCode {
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusForbidden:
		title = "Forbidden"
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	case http.StatusInternalServerError:
		title = "Internal Server Error"
	default:
		title = http.StatusText(statusCode)
	}

	problem := map[string]any{
		"type":          fmt.Sprintf("https://xray.dev/problems/%d", statusCode),
		"title":         title,
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
