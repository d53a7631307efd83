// Package openai implements the embedding provider against any
// OpenAI-compatible /v1/embeddings endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/levkin/ragbase/embedding"
)

// Config holds the connection settings for an OpenAI-compatible API.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	VectorLength int
	Timeout      time.Duration
}

// Client calls the embeddings endpoint of an OpenAI-compatible server.
type Client struct {
	config Config
	client *http.Client
}

// New creates an embeddings client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) Embed(ctx context.Context, text string) (embedding.Result, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.config.Model, Input: []string{text}})
	if err != nil {
		return embedding.Result{}, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return embedding.Result{}, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return embedding.Result{}, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return embedding.Result{}, &embedding.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    string(message),
		}
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return embedding.Result{}, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return embedding.Result{}, fmt.Errorf("embedding response contains no data")
	}

	return embedding.Result{
		Vector:     decoded.Data[0].Embedding,
		TokensUsed: decoded.Usage.TotalTokens,
	}, nil
}

func (c *Client) VectorLength() int {
	return c.config.VectorLength
}

var _ embedding.Provider = (*Client)(nil)
