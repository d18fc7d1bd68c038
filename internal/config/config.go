// Package config loads wsearch settings from YAML with environment
// overrides. Out-of-range values are clamped back to defaults rather
// than rejected, so a bad config file degrades instead of failing.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Worker    WorkerConfig    `yaml:"worker"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StoreConfig struct {
	Path           string `yaml:"path"`
	HalfVecEnabled bool   `yaml:"halfvec_enabled"`
}

type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // "openai" or "static"
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

type ChunkingConfig struct {
	ChunkSize          int  `yaml:"chunk_size"`
	Overlap            int  `yaml:"overlap"`
	PreserveParagraphs bool `yaml:"preserve_paragraphs"`
	PreserveCodeBlocks bool `yaml:"preserve_code_blocks"`
}

type WorkerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       int           `yaml:"batch_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Retention       time.Duration `yaml:"retention"`
}

type SearchConfig struct {
	Limit     int     `yaml:"limit"`
	Threshold float64 `yaml:"threshold"`
	Encoding  string  `yaml:"encoding"` // "vector", "halfvec", or "auto"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "wsearch.db",
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  100,
			Timeout:    60 * time.Second,
			CacheSize:  1024,
		},
		Chunking: ChunkingConfig{
			ChunkSize:          1000,
			Overlap:            200,
			PreserveParagraphs: true,
			PreserveCodeBlocks: true,
		},
		Worker: WorkerConfig{
			PollInterval:    5 * time.Second,
			BatchSize:       10,
			CleanupInterval: time.Hour,
			Retention:       7 * 24 * time.Hour,
		},
		Search: SearchConfig{
			Limit:    10,
			Encoding: "auto",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file at path, falling back to defaults when path
// is empty or the file does not exist. Environment variables override the
// file, and the result is validated with clamping.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// missing file is fine, defaults apply
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.Validate()
	return cfg, nil
}

// applyEnv layers WSEARCH_* environment variables over the loaded values.
func (c *Config) applyEnv() {
	if v := os.Getenv("WSEARCH_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("WSEARCH_HALFVEC"); v != "" {
		c.Store.HalfVecEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("WSEARCH_EMBEDDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("WSEARCH_OPENAI_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("WSEARCH_OPENAI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("WSEARCH_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("WSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WSEARCH_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.PollInterval = d
		}
	}
	if v := os.Getenv("WSEARCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.BatchSize = n
		}
	}
}

// Validate clamps out-of-range values back to defaults and logs each
// correction.
func (c *Config) Validate() {
	d := Default()

	clampInt(&c.Embedding.Dimensions, 1, 8192, d.Embedding.Dimensions, "embedding.dimensions")
	clampInt(&c.Embedding.BatchSize, 1, 100, d.Embedding.BatchSize, "embedding.batch_size")
	clampDuration(&c.Embedding.Timeout, time.Second, 10*time.Minute, d.Embedding.Timeout, "embedding.timeout")
	if c.Embedding.CacheSize < 0 {
		warnClamp("embedding.cache_size", c.Embedding.CacheSize, d.Embedding.CacheSize)
		c.Embedding.CacheSize = d.Embedding.CacheSize
	}

	clampInt(&c.Chunking.ChunkSize, 100, 8000, d.Chunking.ChunkSize, "chunking.chunk_size")
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		warnClamp("chunking.overlap", c.Chunking.Overlap, d.Chunking.Overlap)
		c.Chunking.Overlap = d.Chunking.Overlap
		if c.Chunking.Overlap >= c.Chunking.ChunkSize {
			c.Chunking.Overlap = c.Chunking.ChunkSize / 5
		}
	}

	clampDuration(&c.Worker.PollInterval, 100*time.Millisecond, time.Hour, d.Worker.PollInterval, "worker.poll_interval")
	clampInt(&c.Worker.BatchSize, 1, 1000, d.Worker.BatchSize, "worker.batch_size")
	clampDuration(&c.Worker.CleanupInterval, time.Minute, 24*time.Hour, d.Worker.CleanupInterval, "worker.cleanup_interval")
	clampDuration(&c.Worker.Retention, time.Hour, 90*24*time.Hour, d.Worker.Retention, "worker.retention")

	clampInt(&c.Search.Limit, 1, 100, d.Search.Limit, "search.limit")
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		warnClamp("search.threshold", c.Search.Threshold, d.Search.Threshold)
		c.Search.Threshold = d.Search.Threshold
	}
	switch c.Search.Encoding {
	case "vector", "halfvec", "auto":
	default:
		warnClamp("search.encoding", c.Search.Encoding, d.Search.Encoding)
		c.Search.Encoding = d.Search.Encoding
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		warnClamp("logging.level", c.Logging.Level, d.Logging.Level)
		c.Logging.Level = d.Logging.Level
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		warnClamp("logging.format", c.Logging.Format, d.Logging.Format)
		c.Logging.Format = d.Logging.Format
	}
}

func clampInt(v *int, min, max, def int, name string) {
	if *v < min || *v > max {
		warnClamp(name, *v, def)
		*v = def
	}
}

func clampDuration(v *time.Duration, min, max, def time.Duration, name string) {
	if *v < min || *v > max {
		warnClamp(name, *v, def)
		*v = def
	}
}

func warnClamp(name string, got, def any) {
	slog.Warn("config value out of range, using default",
		slog.String("setting", name),
		slog.Any("got", got),
		slog.Any("default", def))
}
