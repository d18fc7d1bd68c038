package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "wsearch.db", cfg.Store.Path)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsearch.yaml")
	body := `
store:
  path: /var/lib/wsearch/index.db
  halfvec_enabled: true
embedding:
  provider: static
worker:
  poll_interval: 2s
  batch_size: 25
search:
  threshold: 0.4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/wsearch/index.db", cfg.Store.Path)
	assert.True(t, cfg.Store.HalfVecEnabled)
	assert.Equal(t, "static", cfg.Embedding.Provider)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 25, cfg.Worker.BatchSize)
	assert.Equal(t, 0.4, cfg.Search.Threshold)
	// untouched sections keep their defaults
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [next"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WSEARCH_DB_PATH", "/tmp/env.db")
	t.Setenv("WSEARCH_EMBEDDER", "static")
	t.Setenv("WSEARCH_HALFVEC", "true")
	t.Setenv("WSEARCH_POLL_INTERVAL", "3s")
	t.Setenv("WSEARCH_BATCH_SIZE", "7")
	t.Setenv("WSEARCH_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
	assert.Equal(t, "static", cfg.Embedding.Provider)
	assert.True(t, cfg.Store.HalfVecEnabled)
	assert.Equal(t, 3*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 7, cfg.Worker.BatchSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestExplicitAPIKeyWinsOverFallbackEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fallback")
	t.Setenv("WSEARCH_OPENAI_API_KEY", "explicit")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Embedding.APIKey)
}

func TestValidateClampsOutOfRangeValues(t *testing.T) {
	cfg := Default()
	cfg.Chunking.ChunkSize = -5
	cfg.Chunking.Overlap = 99999
	cfg.Worker.BatchSize = 0
	cfg.Search.Limit = -1
	cfg.Search.Threshold = 2.5
	cfg.Search.Encoding = "float64"
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	cfg.Validate()

	d := Default()
	assert.Equal(t, d.Chunking.ChunkSize, cfg.Chunking.ChunkSize)
	assert.Equal(t, d.Chunking.Overlap, cfg.Chunking.Overlap)
	assert.Equal(t, d.Worker.BatchSize, cfg.Worker.BatchSize)
	assert.Equal(t, d.Search.Limit, cfg.Search.Limit)
	assert.Equal(t, d.Search.Threshold, cfg.Search.Threshold)
	assert.Equal(t, d.Search.Encoding, cfg.Search.Encoding)
	assert.Equal(t, d.Logging.Level, cfg.Logging.Level)
	assert.Equal(t, d.Logging.Format, cfg.Logging.Format)
}

func TestValidateKeepsInRangeValues(t *testing.T) {
	cfg := Default()
	cfg.Chunking.ChunkSize = 500
	cfg.Chunking.Overlap = 100
	cfg.Search.Threshold = 0.75

	cfg.Validate()

	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 0.75, cfg.Search.Threshold)
}
