package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache wraps a provider with an in-memory LRU keyed by content hash.
// Identical chunk text across reindex runs hits the cache instead of the
// upstream provider.
type Cache struct {
	inner Provider
	cache *lru.Cache[string, Result]
}

// NewCache creates a caching provider holding up to size entries.
func NewCache(inner Provider, size int) (*Cache, error) {
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, cache: cache}, nil
}

func (c *Cache) Embed(ctx context.Context, text string) (Result, error) {
	key := cacheKey(text)
	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}
	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return Result{}, err
	}
	c.cache.Add(key, result)
	return result, nil
}

func (c *Cache) VectorLength() int {
	return c.inner.VectorLength()
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Close releases the wrapped provider if it holds resources, like the local
// ONNX session.
func (c *Cache) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var _ Provider = (*Cache)(nil)
