package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levkin/ragbase/embedding"
)

func TestClientEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path, "request should hit the embeddings endpoint")
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"), "api key should be sent as bearer token")

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model, "model should be forwarded")
		require.Len(t, req.Input, 1, "a single text should be embedded")

		json.NewEncoder(w).Encode(map[string]any{
			"data":  []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
			"usage": map[string]any{"total_tokens": 7},
		})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, APIKey: "test-key", Model: "text-embedding-3-small", VectorLength: 3})
	result, err := client.Embed(context.Background(), "что такое стеклянная дверь")
	require.NoError(t, err, "embedding should succeed")
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, result.Vector, "vector should be decoded")
	assert.Equal(t, 7, result.TokensUsed, "token usage should be decoded")
	assert.Equal(t, 3, client.VectorLength(), "vector length should come from config")
}

func TestClientEmbedRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Model: "text-embedding-3-small"})
	_, err := client.Embed(context.Background(), "text")
	require.Error(t, err, "a 429 should surface as an error")

	var providerErr *embedding.ProviderError
	require.True(t, errors.As(err, &providerErr), "error should be a provider error")
	assert.Equal(t, http.StatusTooManyRequests, providerErr.StatusCode)
	assert.True(t, providerErr.Transient(), "rate limits should be retryable")
}

func TestClientEmbedEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Model: "text-embedding-3-small"})
	_, err := client.Embed(context.Background(), "text")
	assert.Error(t, err, "an empty data array should be rejected")
}
