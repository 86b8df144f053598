// Package sdk provides client-side instrumentation for X-Ray: run/step
// lifecycle objects, payload summarization, and a buffered fail-open
// transport that ships events to the ingest API.
//
// Instrumented code never blocks on observability I/O: events are queued to
// a background worker, and queue overflow or network failure drops events
// with a warning instead of propagating errors.
package sdk

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xray-io/xray/apitypes"
	"github.com/xray-io/xray/internal/config"
)

const (
	// configFileName is discovered by walking up from the working directory.
	configFileName = "xray.config.yaml"

	defaultBufferSize    = 1000
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultHTTPTimeout   = 30 * time.Second
)

type (
	// Config holds client configuration.
	//
	// Precedence: explicit options > environment (XRAY_*) > xray.config.yaml
	// > defaults.
	Config struct {
		// BaseURL of the ingest API (e.g. "http://localhost:8000").
		// When empty the transport runs but skips POSTs.
		BaseURL string

		// APIKey, when set, is sent as "Authorization: Bearer <key>".
		APIKey string

		// BufferSize is the capacity of the transport queue.
		BufferSize int

		// BatchSize is the maximum events shipped per POST.
		// Clamped to BufferSize.
		BatchSize int

		// FlushInterval bounds how long the worker waits to fill a batch.
		FlushInterval time.Duration

		// HTTPTimeout applies to each POST.
		HTTPTimeout time.Duration

		// DefaultDetail selects summary-only or full payload externalization.
		DefaultDetail apitypes.DetailLevel
	}

	// Option overrides a single Config field.
	Option func(*Config)

	// fileConfig mirrors the sdk section of xray.config.yaml.
	// The api section of the shared file is read by the server, not here.
	fileConfig struct {
		SDK struct {
			BaseURL       string  `yaml:"base_url"`
			APIKey        string  `yaml:"api_key"`
			BufferSize    int     `yaml:"buffer_size"`
			BatchSize     int     `yaml:"batch_size"`
			FlushInterval float64 `yaml:"flush_interval"` // seconds
			HTTPTimeout   float64 `yaml:"http_timeout"`   // seconds
			DefaultDetail string  `yaml:"default_detail"`
		} `yaml:"sdk"`
	}
)

// WithBaseURL sets the ingest API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Config) { c.BaseURL = baseURL }
}

// WithAPIKey sets the bearer token sent with each batch.
func WithAPIKey(apiKey string) Option {
	return func(c *Config) { c.APIKey = apiKey }
}

// WithBufferSize sets the transport queue capacity.
func WithBufferSize(size int) Option {
	return func(c *Config) { c.BufferSize = size }
}

// WithBatchSize sets the maximum events per POST.
func WithBatchSize(size int) Option {
	return func(c *Config) { c.BatchSize = size }
}

// WithFlushInterval sets the maximum wait before a partial batch ships.
func WithFlushInterval(interval time.Duration) Option {
	return func(c *Config) { c.FlushInterval = interval }
}

// WithHTTPTimeout sets the per-POST timeout.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.HTTPTimeout = timeout }
}

// WithDefaultDetail sets the default detail level for new runs.
func WithDefaultDetail(detail apitypes.DetailLevel) Option {
	return func(c *Config) { c.DefaultDetail = detail }
}

// LoadConfig builds a Config by layering defaults, the discovered
// xray.config.yaml, XRAY_* environment variables, and explicit options,
// in increasing precedence.
func LoadConfig(opts ...Option) *Config {
	cfg := &Config{
		BufferSize:    defaultBufferSize,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
		HTTPTimeout:   defaultHTTPTimeout,
		DefaultDetail: apitypes.DetailSummary,
	}

	cfg.applyFile()
	cfg.applyEnv()

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.normalize()

	return cfg
}

// applyFile merges values from xray.config.yaml if one is discovered.
// A missing or unreadable file is ignored: the SDK must never fail to load.
func (c *Config) applyFile() {
	path := findConfigFile()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path) //nolint: gosec // path discovered from cwd
	if err != nil {
		return
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return
	}

	if file.SDK.BaseURL != "" {
		c.BaseURL = file.SDK.BaseURL
	}

	if file.SDK.APIKey != "" {
		c.APIKey = file.SDK.APIKey
	}

	if file.SDK.BufferSize > 0 {
		c.BufferSize = file.SDK.BufferSize
	}

	if file.SDK.BatchSize > 0 {
		c.BatchSize = file.SDK.BatchSize
	}

	if file.SDK.FlushInterval > 0 {
		c.FlushInterval = time.Duration(file.SDK.FlushInterval * float64(time.Second))
	}

	if file.SDK.HTTPTimeout > 0 {
		c.HTTPTimeout = time.Duration(file.SDK.HTTPTimeout * float64(time.Second))
	}

	if detail := apitypes.DetailLevel(file.SDK.DefaultDetail); detail.IsValid() {
		c.DefaultDetail = detail
	}
}

// applyEnv merges XRAY_* environment variables.
func (c *Config) applyEnv() {
	c.BaseURL = config.GetEnvStr("XRAY_BASE_URL", c.BaseURL)
	c.APIKey = config.GetEnvStr("XRAY_API_KEY", c.APIKey)
	c.BufferSize = config.GetEnvInt("XRAY_BUFFER_SIZE", c.BufferSize)
	c.BatchSize = config.GetEnvInt("XRAY_BATCH_SIZE", c.BatchSize)
	c.FlushInterval = config.GetEnvDuration("XRAY_FLUSH_INTERVAL", c.FlushInterval)
	c.HTTPTimeout = config.GetEnvDuration("XRAY_HTTP_TIMEOUT", c.HTTPTimeout)

	if detail := apitypes.DetailLevel(config.GetEnvStr("XRAY_DEFAULT_DETAIL", "")); detail.IsValid() {
		c.DefaultDetail = detail
	}
}

// normalize repairs out-of-range values instead of failing: the SDK is
// fail-open from configuration onward.
func (c *Config) normalize() {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}

	// A batch can never exceed what the queue can hold.
	if c.BatchSize > c.BufferSize {
		c.BatchSize = c.BufferSize
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}

	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}

	if !c.DefaultDetail.IsValid() {
		c.DefaultDetail = apitypes.DetailSummary
	}
}

// IngestURL returns the full ingest endpoint URL.
func (c *Config) IngestURL() string {
	return fmt.Sprintf("%s/ingest", c.BaseURL)
}

// findConfigFile walks up from the working directory looking for
// xray.config.yaml. Returns "" when no file is found.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, configFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}
