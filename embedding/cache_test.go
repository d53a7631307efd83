package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Embed(ctx context.Context, text string) (Result, error) {
	p.calls++
	if p.err != nil {
		return Result{}, p.err
	}
	return Result{Vector: []float32{float32(len(text))}, TokensUsed: len(text) / 4}, nil
}

func (p *countingProvider) VectorLength() int { return 1 }

func TestCacheHit(t *testing.T) {
	inner := &countingProvider{}
	cache, err := NewCache(inner, 8)
	require.NoError(t, err, "creating the cache should succeed")

	first, err := cache.Embed(context.Background(), "стеклянная дверь")
	require.NoError(t, err)
	second, err := cache.Embed(context.Background(), "стеклянная дверь")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "the second identical request should hit the cache")
	assert.Equal(t, first.Vector, second.Vector, "cached result should match the original")
	assert.Equal(t, 1, cache.Len(), "one entry should be cached")
}

func TestCacheMiss(t *testing.T) {
	inner := &countingProvider{}
	cache, err := NewCache(inner, 8)
	require.NoError(t, err)

	_, err = cache.Embed(context.Background(), "first text")
	require.NoError(t, err)
	_, err = cache.Embed(context.Background(), "second text")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls, "distinct texts should each reach the provider")
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: errors.New("upstream down")}
	cache, err := NewCache(inner, 8)
	require.NoError(t, err)

	_, err = cache.Embed(context.Background(), "text")
	assert.Error(t, err, "provider errors should surface")

	inner.err = nil
	_, err = cache.Embed(context.Background(), "text")
	assert.NoError(t, err, "a later retry should reach the recovered provider")
	assert.Equal(t, 2, inner.calls, "failed calls must not be cached")
}

func TestCacheEviction(t *testing.T) {
	inner := &countingProvider{}
	cache, err := NewCache(inner, 2)
	require.NoError(t, err)

	for _, text := range []string{"a", "b", "c"} {
		_, err = cache.Embed(context.Background(), text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.Len(), "cache should hold at most its configured size")

	_, err = cache.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls, "the evicted entry should be recomputed")
}

func TestProviderErrorTransient(t *testing.T) {
	assert.True(t, (&ProviderError{StatusCode: 429}).Transient(), "rate limits are transient")
	assert.True(t, (&ProviderError{StatusCode: 503}).Transient(), "server errors are transient")
	assert.False(t, (&ProviderError{StatusCode: 401}).Transient(), "auth failures are permanent")
	assert.False(t, (&ProviderError{StatusCode: 400}).Transient(), "bad requests are permanent")
}
