package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	embeds  atomic.Int32
	batched atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, int, error) {
	c.embeds.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batched.Add(int32(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer func() { _ = c.Close() }()

	first, tokens, err := c.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	assert.Positive(t, tokens)

	second, tokens, err := c.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	assert.Zero(t, tokens) // cache hit charges nothing

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.embeds.Load())
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer func() { _ = c.Close() }()

	_, _, err := c.Embed(context.Background(), "b")
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// "b" came from cache; only "a" and "c" reached the inner embedder.
	assert.Equal(t, int32(2), inner.batched.Load())
	for _, v := range vectors {
		assert.Len(t, v, StaticDimensions)
	}
}
