// Package qdrant is a minimal REST client to Qdrant implementing the
// vectorstore port. It assumes cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/levkin/ragbase/vectorstore"
)

// Config holds the Qdrant connection settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Store talks to a Qdrant instance over its REST API.
type Store struct {
	url    string
	apiKey string
	client *http.Client
}

// New creates a Qdrant-backed store.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection if missing. Qdrant answers 200 for
// an existing collection with the same schema, so the call is idempotent.
func (s *Store) EnsureCollection(ctx context.Context, collection string, vectorLength int) error {
	if vectorLength <= 0 {
		return fmt.Errorf("qdrant: invalid vector length %d", vectorLength)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorLength,
			"distance": "Cosine",
		},
	}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, collection), body, nil)
}

// Upsert writes points as one batch. With wait set, Qdrant acknowledges the
// write before responding.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point, wait bool) error {
	if len(points) == 0 {
		return nil
	}
	qdrantPoints := make([]map[string]any, len(points))
	for i, p := range points {
		qdrantPoints[i] = map[string]any{
			"id":      p.ID.String(),
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=%t", s.url, collection, wait)
	return s.putJSON(ctx, url, map[string]any{"points": qdrantPoints}, nil)
}

// Search runs a similarity search and returns scored points with payloads.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, collection)
	if err := s.postJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid point id %q: %w", r.ID, err)
		}
		results = append(results, vectorstore.ScoredPoint{
			ID:      id,
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return results, nil
}

// DeletePoints removes points by id. Qdrant treats unknown ids as deleted,
// so the call is idempotent.
func (s *Store) DeletePoints(ctx context.Context, collection string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = id.String()
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, collection)
	return s.postJSON(ctx, url, map[string]any{"points": pointIDs}, nil)
}

// DeleteCollection drops the collection.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/collections/%s", s.url, collection), nil)
	if err != nil {
		return err
	}
	return s.do(req, nil)
}

func (s *Store) putJSON(ctx context.Context, url string, body any, out any) error {
	return s.sendJSON(ctx, http.MethodPut, url, body, out)
}

func (s *Store) postJSON(ctx context.Context, url string, body any, out any) error {
	return s.sendJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Store) sendJSON(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("qdrant: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Store) do(req *http.Request, out any) error {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("qdrant: %s %s failed: %s: %s", req.Method, req.URL.Path, resp.Status, string(body))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ vectorstore.Store = (*Store)(nil)
