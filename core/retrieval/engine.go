// Package retrieval runs hybrid lexical plus vector retrieval and merges the
// two channels into one deterministic ranking.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/levkin/ragbase/embedding"
	"github.com/levkin/ragbase/model"
	"github.com/levkin/ragbase/render"
	"github.com/levkin/ragbase/vectorstore"
)

// Scope narrows a query to one workspace and knowledge base.
type Scope struct {
	WorkspaceRID uuid.UUID
	BaseRID      uuid.UUID
}

// LexicalSearcher is the lexical channel port, implemented by
// database.SearchDBHandler.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, workspaceRID uuid.UUID, query string, variants []string, limit int) ([]*model.RetrievalResult, error)
}

// Engine combines the lexical and vector channels.
type Engine struct {
	lexical  LexicalSearcher
	vectors  vectorstore.Store
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewEngine creates a hybrid retrieval engine.
func NewEngine(lexical LexicalSearcher, vectors vectorstore.Store, embedder embedding.Provider, logger *slog.Logger) *Engine {
	return &Engine{
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		logger:   logger,
	}
}

// Retrieve runs both channels concurrently and merges their candidates into
// a normalized weighted ranking. A failed channel contributes nothing and is
// only logged; the query fails hard only when both channels fail.
func (e *Engine) Retrieve(ctx context.Context, scope Scope, query string, cfg model.HybridConfig) ([]*model.RetrievalResult, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	var (
		wg             sync.WaitGroup
		lexicalResults []*model.RetrievalResult
		vectorResults  []*model.RetrievalResult
		lexicalErr     error
		vectorErr      error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexicalResults, lexicalErr = e.searchLexical(ctx, scope, query, cfg)
	}()
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = e.searchVector(ctx, scope, query, cfg)
	}()
	wg.Wait()

	if lexicalErr != nil && vectorErr != nil {
		return nil, fmt.Errorf("both retrieval channels failed: lexical: %v; vector: %v", lexicalErr, vectorErr)
	}
	if lexicalErr != nil {
		e.logger.Warn("Lexical channel failed, degrading to vector only", slog.String("error", lexicalErr.Error()))
		lexicalResults = nil
	}
	if vectorErr != nil {
		e.logger.Warn("Vector channel failed, degrading to lexical only", slog.String("error", vectorErr.Error()))
		vectorResults = nil
	}

	merged := merge(lexicalResults, vectorResults, cfg)
	for _, result := range merged {
		result.Snippet = Snippet(result.Content, query, cfg.SnippetLength)
	}
	return merged, nil
}

func (e *Engine) searchLexical(ctx context.Context, scope Scope, query string, cfg model.HybridConfig) ([]*model.RetrievalResult, error) {
	limit := cfg.Lexical.Limit
	if limit <= 0 {
		limit = 20
	}
	return e.lexical.SearchLexical(ctx, scope.WorkspaceRID, query, Variants(query), limit)
}

func (e *Engine) searchVector(ctx context.Context, scope Scope, query string, cfg model.HybridConfig) ([]*model.RetrievalResult, error) {
	embedded, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = vectorstore.CollectionName(scope.WorkspaceRID)
	}
	limit := cfg.Vector.Limit
	if limit <= 0 {
		limit = 20
	}

	points, err := e.vectors.Search(ctx, collection, embedded.Vector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]*model.RetrievalResult, 0, len(points))
	for i, point := range points {
		chunkRID, err := uuid.Parse(render.AsString(point.Payload, "chunk_rid"))
		if err != nil {
			// Points without a chunk reference cannot be cited, skip them.
			continue
		}
		documentRID, _ := uuid.Parse(render.AsString(point.Payload, "document_rid"))

		results = append(results, &model.RetrievalResult{
			ChunkRID:      chunkRID,
			DocumentRID:   documentRID,
			VectorScore:   point.Score,
			Source:        model.SourceVector,
			Content:       render.AsString(point.Payload, "content"),
			DocumentTitle: render.AsString(point.Payload, "title"),
			DocumentSlug:  render.AsString(point.Payload, "slug"),
			Heading:       render.AsString(point.Payload, "heading"),
			SectionPath:   render.AsString(point.Payload, "section_path"),
			VectorRank:    i + 1,
		})
	}
	return results, nil
}

// merge normalizes each channel with min-max scaling, combines the scores
// with the channel weights, deduplicates by chunk and returns the topK in a
// deterministic order.
func merge(lexical, vector []*model.RetrievalResult, cfg model.HybridConfig) []*model.RetrievalResult {
	lexicalNorm := normalize(lexical, func(r *model.RetrievalResult) float64 { return r.LexicalScore })
	vectorNorm := normalize(vector, func(r *model.RetrievalResult) float64 { return r.VectorScore })

	combined := map[uuid.UUID]*model.RetrievalResult{}
	for i, result := range lexical {
		result.Score = cfg.Lexical.Weight * lexicalNorm[i]
		combined[result.ChunkRID] = result
	}
	for i, result := range vector {
		weighted := cfg.Vector.Weight * vectorNorm[i]
		existing, ok := combined[result.ChunkRID]
		if !ok {
			result.Score = weighted
			combined[result.ChunkRID] = result
			continue
		}

		// Present in both channels: sum the weighted scores and keep the
		// richer lexical enrichment.
		existing.Score += weighted
		existing.VectorScore = result.VectorScore
		existing.VectorRank = result.VectorRank
		existing.Source = model.SourceBoth
	}

	merged := make([]*model.RetrievalResult, 0, len(combined))
	for _, result := range combined {
		merged = append(merged, result)
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LexicalRank != b.LexicalRank {
			return rankLess(a.LexicalRank, b.LexicalRank)
		}
		if a.VectorRank != b.VectorRank {
			return rankLess(a.VectorRank, b.VectorRank)
		}
		return a.ChunkRID.String() < b.ChunkRID.String()
	})

	topK := cfg.TopK
	if topK <= 0 {
		topK = 8
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// rankLess orders 1-based ranks ascending, with 0 (absent from the channel)
// sorting last.
func rankLess(a, b int) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}

// normalize min-max scales channel scores to [0,1]. A degenerate channel
// where every score is equal maps to all ones.
func normalize(results []*model.RetrievalResult, score func(*model.RetrievalResult) float64) []float64 {
	if len(results) == 0 {
		return nil
	}

	min, max := score(results[0]), score(results[0])
	for _, r := range results[1:] {
		s := score(r)
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	normalized := make([]float64, len(results))
	for i, r := range results {
		if max == min {
			normalized[i] = 1
			continue
		}
		normalized[i] = (score(r) - min) / (max - min)
	}
	return normalized
}
