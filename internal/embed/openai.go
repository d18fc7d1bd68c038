package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultOpenAIBaseURL is the default embedding service endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// DefaultOpenAIModel is the default embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI-compatible embedding client.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	Retry      RetryConfig
}

// OpenAIEmbedder generates embeddings using an OpenAI-compatible HTTP API.
type OpenAIEmbedder struct {
	client *http.Client
	config OpenAIConfig

	tokens atomic.Int64 // cumulative tokens charged by the service

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// openAIEmbedRequest is the wire format of an embeddings request.
type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openAIEmbedResponse is the wire format of an embeddings response.
type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIEmbedder creates a new embedding client for an OpenAI-compatible
// service.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &OpenAIEmbedder{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// Embed generates an embedding for a single text and returns the token count
// the service charged for it.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, int, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, 0, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	// Empty or whitespace-only input embeds as the zero vector without a
	// service round trip.
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.config.Dimensions), 0, nil
	}

	vectors, tokens, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, 0, err
	}
	if len(vectors) == 0 {
		return nil, 0, fmt.Errorf("no embedding returned")
	}
	return vectors[0], tokens, nil
}

// EmbedBatch generates embeddings for multiple texts, splitting oversized
// input into sub-batches of at most BatchSize.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Empty inputs get zero vectors; only non-empty texts go to the service.
	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.config.Dimensions)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vectors, _, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}

		for i, vec := range vectors {
			results[batch[i].idx] = vec
		}
	}

	return results, nil
}

// doEmbedWithRetry performs one batch embedding with bounded exponential
// backoff. After the retry budget is exhausted the last error propagates to
// the caller; nothing is swallowed here.
func (e *OpenAIEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, int, error) {
	var (
		vectors [][]float32
		tokens  int
	)

	err := WithBackoff(ctx, e.config.Retry, func() error {
		var attemptErr error
		vectors, tokens, attemptErr = e.doEmbed(ctx, texts)
		if attemptErr != nil {
			slog.Debug("embedding_attempt_failed",
				slog.Int("texts_count", len(texts)),
				slog.String("error", attemptErr.Error()))
		}
		return attemptErr
	})
	if err != nil {
		return nil, 0, err
	}

	e.tokens.Add(int64(tokens))
	return vectors, tokens, nil
}

// doEmbed performs a single embeddings request.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, int, error) {
	url := e.config.BaseURL + "/embeddings"

	body, err := json.Marshal(openAIEmbedRequest{
		Model:      e.config.Model,
		Input:      texts,
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Data) != len(texts) {
		return nil, 0, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// The service may return entries out of order; place by index and
	// normalize for cosine similarity.
	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, 0, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[d.Index] = normalizeVector(vec)
	}

	return vectors, result.Usage.TotalTokens, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the service answers a minimal embedding request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, _, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil
}

// TokensUsed returns the cumulative token count charged by the service.
func (e *OpenAIEmbedder) TokensUsed() int64 {
	return e.tokens.Load()
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
