package sdk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xray-io/xray/apitypes"
)

func TestLoadConfigDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Run from an isolated directory so a developer's xray.config.yaml
	// higher up the tree cannot leak in.
	t.Chdir(t.TempDir())

	cfg := LoadConfig()

	assert.Empty(t, cfg.BaseURL)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, defaultBufferSize, cfg.BufferSize)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, defaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, defaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, apitypes.DetailSummary, cfg.DefaultDetail)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Chdir(t.TempDir())

	t.Setenv("XRAY_BASE_URL", "http://xray.internal:8000")
	t.Setenv("XRAY_API_KEY", "env-key")
	t.Setenv("XRAY_BUFFER_SIZE", "500")
	t.Setenv("XRAY_BATCH_SIZE", "25")
	t.Setenv("XRAY_FLUSH_INTERVAL", "2s")
	t.Setenv("XRAY_HTTP_TIMEOUT", "10s")
	t.Setenv("XRAY_DEFAULT_DETAIL", "full")

	cfg := LoadConfig()

	assert.Equal(t, "http://xray.internal:8000", cfg.BaseURL)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 500, cfg.BufferSize)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, apitypes.DetailFull, cfg.DefaultDetail)
}

func TestLoadConfigOptionsWinOverEnvironment(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Chdir(t.TempDir())

	t.Setenv("XRAY_BASE_URL", "http://from-env:8000")
	t.Setenv("XRAY_BATCH_SIZE", "25")

	cfg := LoadConfig(
		WithBaseURL("http://from-option:8000"),
		WithBatchSize(10),
	)

	assert.Equal(t, "http://from-option:8000", cfg.BaseURL)
	assert.Equal(t, 10, cfg.BatchSize)
}

func TestLoadConfigFromFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	dir := t.TempDir()

	content := `sdk:
  base_url: http://from-file:8000
  buffer_size: 200
  batch_size: 20
  flush_interval: 1.5
  http_timeout: 12
  default_detail: full
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600))

	// Discovery walks up from the working directory, so a nested
	// subdirectory still finds the file at dir.
	nested := filepath.Join(dir, "services", "search")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	t.Chdir(nested)

	cfg := LoadConfig()

	assert.Equal(t, "http://from-file:8000", cfg.BaseURL)
	assert.Equal(t, 200, cfg.BufferSize)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 12*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, apitypes.DetailFull, cfg.DefaultDetail)
}

func TestLoadConfigEnvironmentWinsOverFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	dir := t.TempDir()

	content := `sdk:
  base_url: http://from-file:8000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600))
	t.Chdir(dir)

	t.Setenv("XRAY_BASE_URL", "http://from-env:8000")

	cfg := LoadConfig()

	assert.Equal(t, "http://from-env:8000", cfg.BaseURL)
}

func TestLoadConfigIgnoresMalformedFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("{not yaml: ["), 0o600))
	t.Chdir(dir)

	// Configuration loading is fail-open: a broken file falls back to
	// defaults instead of erroring.
	cfg := LoadConfig()
	assert.Equal(t, defaultBufferSize, cfg.BufferSize)
}

func TestLoadConfigNormalization(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Chdir(t.TempDir())

	t.Run("batch size clamped to buffer size", func(t *testing.T) {
		cfg := LoadConfig(WithBufferSize(10), WithBatchSize(100))

		assert.Equal(t, 10, cfg.BufferSize)
		assert.Equal(t, 10, cfg.BatchSize)
	})

	t.Run("non-positive values repaired", func(t *testing.T) {
		cfg := LoadConfig(
			WithBufferSize(-1),
			WithBatchSize(0),
			WithFlushInterval(-time.Second),
			WithHTTPTimeout(0),
		)

		assert.Equal(t, defaultBufferSize, cfg.BufferSize)
		assert.Equal(t, defaultBatchSize, cfg.BatchSize)
		assert.Equal(t, defaultFlushInterval, cfg.FlushInterval)
		assert.Equal(t, defaultHTTPTimeout, cfg.HTTPTimeout)
	})

	t.Run("invalid detail falls back to summary", func(t *testing.T) {
		cfg := LoadConfig(WithDefaultDetail(apitypes.DetailLevel("verbose")))

		assert.Equal(t, apitypes.DetailSummary, cfg.DefaultDetail)
	})
}

func TestIngestURL(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &Config{BaseURL: "http://localhost:8000"}
	assert.Equal(t, "http://localhost:8000/ingest", cfg.IngestURL())
}
