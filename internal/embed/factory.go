package embed

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOpenAI uses an OpenAI-compatible HTTP embedding service.
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses hash-based embeddings (offline fallback).
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder based on provider type.
// The WSEARCH_EMBEDDER environment variable overrides the provider:
//   - "openai": OpenAI-compatible HTTP service
//   - "static": hash-based embeddings, no external dependency
//
// The result is wrapped with an LRU cache so repeated texts are not
// re-embedded; pass cacheSize <= 0 for the default size.
func NewEmbedder(provider ProviderType, cfg OpenAIConfig, cacheSize int) (Embedder, error) {
	if env := os.Getenv("WSEARCH_EMBEDDER"); env != "" {
		provider = ProviderType(strings.ToLower(env))
	}

	var embedder Embedder
	switch provider {
	case ProviderOpenAI:
		embedder = NewOpenAIEmbedder(cfg)
	case ProviderStatic, "":
		embedder = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	return NewCachedEmbedder(embedder, cacheSize), nil
}
