package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewAuthenticator(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		cfg     *AuthConfig
		wantNil bool
	}{
		{"nil config", nil, true},
		{"empty config", &AuthConfig{}, true},
		{"plaintext keys", &AuthConfig{Keys: []string{"key-1"}}, false},
		{"hashed keys", &AuthConfig{KeyHashes: []string{"$2a$10$abcdefghijklmnopqrstuv"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewAuthenticator(tt.cfg)
			if (auth == nil) != tt.wantNil {
				t.Errorf("NewAuthenticator() nil = %v, want %v", auth == nil, tt.wantNil)
			}
		})
	}
}

func TestAuthenticatorVerify(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}

	auth := NewAuthenticator(&AuthConfig{
		Keys:      []string{"plain-key", "second-key"},
		KeyHashes: []string{string(hash)},
	})

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"first plaintext key", "plain-key", true},
		{"second plaintext key", "second-key", true},
		{"bcrypt hashed key", "hashed-key", true},
		{"unknown key", "wrong-key", false},
		{"empty token", "", false},
		{"prefix of valid key", "plain", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := auth.Verify(tt.token); got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name      string
		headers   map[string]string
		wantKey   string
		wantFound bool
	}{
		{
			name:      "X-Api-Key header",
			headers:   map[string]string{"X-Api-Key": "my-key"},
			wantKey:   "my-key",
			wantFound: true,
		},
		{
			name:      "Authorization bearer header",
			headers:   map[string]string{"Authorization": "Bearer my-key"},
			wantKey:   "my-key",
			wantFound: true,
		},
		{
			name:      "X-Api-Key takes precedence",
			headers:   map[string]string{"X-Api-Key": "primary", "Authorization": "Bearer secondary"},
			wantKey:   "primary",
			wantFound: true,
		},
		{
			name:      "no headers",
			headers:   map[string]string{},
			wantFound: false,
		},
		{
			name:      "missing bearer prefix",
			headers:   map[string]string{"Authorization": "my-key"},
			wantFound: false,
		},
		{
			name:      "whitespace only key",
			headers:   map[string]string{"X-Api-Key": "   "},
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			key, found := extractAPIKey(r)
			if found != tt.wantFound {
				t.Fatalf("extractAPIKey() found = %v, want %v", found, tt.wantFound)
			}

			if found && key != tt.wantKey {
				t.Errorf("extractAPIKey() key = %q, want %q", key, tt.wantKey)
			}
		})
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	auth := NewAuthenticator(&AuthConfig{Keys: []string{"valid-key"}})
	logger := slog.Default()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Authenticate(auth, logger)(next)

	t.Run("valid key passes", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/ingest", nil)
		r.Header.Set("X-Api-Key", "valid-key")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("missing key rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/ingest", nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}

		if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("expected problem+json content type, got %q", ct)
		}
	})

	t.Run("invalid key rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/ingest", nil)
		r.Header.Set("X-Api-Key", "wrong-key")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("public endpoint bypasses auth", func(t *testing.T) {
		RegisterPublicEndpoint("/health-bypass-test")

		r := httptest.NewRequest(http.MethodGet, "/health-bypass-test", nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}
