package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, _, err := e.Embed(context.Background(), "workspace page about billing")
	require.NoError(t, err)
	b, _, err := e.Embed(context.Background(), "workspace page about billing")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedder_SimilarTextCloser(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	base, _, err := e.Embed(context.Background(), "quarterly revenue report")
	require.NoError(t, err)
	near, _, err := e.Embed(context.Background(), "quarterly revenue summary")
	require.NoError(t, err)
	far, _, err := e.Embed(context.Background(), "grocery shopping list")
	require.NoError(t, err)

	assert.Greater(t, dot(base, near), dot(base, far))
}

func TestStaticEmbedder_TokenAccounting(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	_, tokens, err := e.Embed(context.Background(), "three word text")
	require.NoError(t, err)
	assert.Equal(t, 3, tokens)
	assert.Equal(t, int64(3), e.TokensUsed())

	_, err = e.EmbedBatch(context.Background(), []string{"one", "two words"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), e.TokensUsed())
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
