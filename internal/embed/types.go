// Package embed converts text spans into fixed-dimension vectors via an
// external embedding service, with batching, bounded retry, and cumulative
// token accounting.
package embed

import (
	"context"
	"math"
	"time"
)

// Batch and retry defaults.
const (
	// MaxBatchSize is the largest sub-batch sent in a single service request.
	MaxBatchSize = 100

	// DefaultBatchSize is the default sub-batch size.
	DefaultBatchSize = 100

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget per batch (not counting the
	// initial attempt).
	DefaultMaxRetries = 3
)

// DefaultDimensions is the embedding dimension requested from the service
// when none is configured.
const DefaultDimensions = 1536

// StaticDimensions is the embedding dimension of the hash-based embedder.
const StaticDimensions = 256

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text and reports the token
	// count the service charged for it.
	Embed(ctx context.Context, text string) ([]float32, int, error)

	// EmbedBatch generates embeddings for multiple texts, sub-batching as
	// needed to respect service request limits.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// TokensUsed returns the cumulative token count consumed so far.
	TokensUsed() int64

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
