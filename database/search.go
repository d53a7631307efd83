package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/levkin/ragbase/helper"
	"github.com/levkin/ragbase/model"
	"github.com/levkin/ragbase/sql"
	"github.com/lib/pq"
)

// SearchDBHandlerFunctions defines the interface for lexical search operations.
type SearchDBHandlerFunctions interface {
	SearchLexical(ctx context.Context, workspaceRID uuid.UUID, query string, variants []string, limit int) ([]*model.RetrievalResult, error)
}

// SearchDBHandler handles lexical full text search over the latest chunk sets
type SearchDBHandler struct {
	db *helper.Database

	// trigramAvailable records whether pg_trgm is installed, decided once
	// at startup. Without the extension the trigram tier is skipped and
	// full text search degrades straight to ILIKE.
	trigramAvailable bool
}

// NewSearchDBHandler creates a new search database handler.
// It loads the search SQL functions and creates the search indexes.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSearchDBHandler(db *helper.Database, force bool) (*SearchDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	searchDbHandler := &SearchDBHandler{
		db: db,
	}

	err := sql.LoadSearchSql(searchDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load search sql", err)
	}

	err = searchDbHandler.db.Instance.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_trgm');`,
	).Scan(&searchDbHandler.trigramAvailable)
	if err != nil {
		return nil, helper.NewError("check pg_trgm extension", err)
	}

	_, err = searchDbHandler.db.Instance.Exec(`SELECT init_search();`)
	if err != nil {
		return nil, helper.NewError("create search indexes", err)
	}

	if !searchDbHandler.trigramAvailable {
		db.Logger.Warn("pg_trgm extension not installed, trigram search tier disabled")
	}

	db.Logger.Info("Initialized SearchDBHandler")

	return searchDbHandler, nil
}

// SearchLexical runs the lexical channel with graceful degradation: full text
// search over all query variants first, trigram similarity when that finds
// nothing, plain substring match as the last resort. The trigram tier is
// skipped entirely when the pg_trgm extension is not installed.
func (h *SearchDBHandler) SearchLexical(ctx context.Context, workspaceRID uuid.UUID, query string, variants []string, limit int) ([]*model.RetrievalResult, error) {
	if len(variants) == 0 {
		variants = []string{query}
	}

	results, err := h.searchRows(ctx,
		`SELECT * FROM search_chunks_lexical($1, $2, $3)`,
		workspaceRID, pq.Array(variants), limit,
	)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	if h.trigramAvailable {
		results, err = h.searchRows(ctx,
			`SELECT * FROM search_chunks_trigram($1, $2, $3)`,
			workspaceRID, query, limit,
		)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
	}

	return h.searchRows(ctx,
		`SELECT * FROM search_chunks_ilike($1, $2, $3)`,
		workspaceRID, query, limit,
	)
}

func (h *SearchDBHandler) searchRows(ctx context.Context, query string, args ...any) ([]*model.RetrievalResult, error) {
	rows, err := h.db.Instance.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.RetrievalResult
	rank := 0
	for rows.Next() {
		result := &model.RetrievalResult{Source: model.SourceLexical}
		err := rows.Scan(
			&result.ChunkRID,
			&result.DocumentRID,
			&result.Content,
			&result.Heading,
			&result.SectionPath,
			&result.TokenCount,
			&result.DocumentTitle,
			&result.DocumentSlug,
			&result.LexicalScore,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		rank++
		result.LexicalRank = rank
		results = append(results, result)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}
