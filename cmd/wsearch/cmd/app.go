package cmd

import (
	"fmt"

	"github.com/Aman-CERP/wsearch/internal/chunk"
	"github.com/Aman-CERP/wsearch/internal/config"
	"github.com/Aman-CERP/wsearch/internal/embed"
	"github.com/Aman-CERP/wsearch/internal/queue"
	"github.com/Aman-CERP/wsearch/internal/store"
)

// app bundles the shared backends a command needs.
type app struct {
	store *store.SQLiteStore
	queue *queue.Queue
}

// openApp opens the store and queue on the configured database file.
func openApp(cfg *config.Config) (*app, error) {
	s, err := store.New(cfg.Store.Path, store.Options{
		HalfVecEnabled: cfg.Store.HalfVecEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	q, err := queue.New(s.DB())
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open task queue: %w", err)
	}
	return &app{store: s, queue: q}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

// newEmbedder builds the configured embedder wrapped in the LRU cache.
func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	return embed.NewEmbedder(embed.ProviderType(cfg.Embedding.Provider), embed.OpenAIConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Timeout:    cfg.Embedding.Timeout,
	}, cfg.Embedding.CacheSize)
}

func chunkConfig(cfg *config.Config) chunk.Config {
	return chunk.Config{
		ChunkSize:          cfg.Chunking.ChunkSize,
		Overlap:            cfg.Chunking.Overlap,
		PreserveParagraphs: cfg.Chunking.PreserveParagraphs,
		PreserveCodeBlocks: cfg.Chunking.PreserveCodeBlocks,
	}
}
