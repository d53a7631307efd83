// Package pack assembles retrieved chunks into a token-bounded context for
// the answering LLM.
package pack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/levkin/ragbase/core/chunker"
	"github.com/levkin/ragbase/model"
)

// DefaultBudgetTokens is the context budget used when the caller passes none.
const DefaultBudgetTokens = 2000

// Citation points a packed passage back to its source chunk.
type Citation struct {
	ChunkRID      uuid.UUID `json:"chunk_rid"`
	DocumentRID   uuid.UUID `json:"document_rid"`
	DocumentTitle string    `json:"document_title,omitempty"`
	DocumentSlug  string    `json:"document_slug,omitempty"`
	Heading       string    `json:"heading,omitempty"`
	Score         float64   `json:"score"`
}

// Packed is the assembled LLM context: the passages joined into one prompt
// block plus the citations backing them, in the order they appear.
type Packed struct {
	Query        string     `json:"query"`
	Context      string     `json:"context"`
	Citations    []Citation `json:"citations"`
	BudgetTokens int        `json:"budget_tokens"`
	UsedTokens   int        `json:"used_tokens"`
}

// Builder packs retrieval results greedily by utility, the relevance score
// per token, until the budget is exhausted.
type Builder struct{}

// NewBuilder creates a context pack builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build selects results by utility within budgetTokens and renders them as a
// single context block. Selected passages keep their retrieval order so the
// strongest results come first, and the citation list is stable for
// identical inputs.
func (b *Builder) Build(query string, results []*model.RetrievalResult, budgetTokens int) Packed {
	if budgetTokens <= 0 {
		budgetTokens = DefaultBudgetTokens
	}
	packed := Packed{
		Query:        query,
		BudgetTokens: budgetTokens,
		Citations:    []Citation{},
	}
	if len(results) == 0 {
		return packed
	}

	type candidate struct {
		result  *model.RetrievalResult
		rank    int
		tokens  int
		utility float64
	}

	candidates := make([]candidate, 0, len(results))
	for rank, result := range results {
		tokens := result.TokenCount
		if tokens <= 0 {
			tokens = chunker.EstimateTokens(result.Content)
		}
		if tokens == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			result:  result,
			rank:    rank,
			tokens:  tokens,
			utility: result.Score / float64(tokens),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].utility != candidates[j].utility {
			return candidates[i].utility > candidates[j].utility
		}
		return candidates[i].rank < candidates[j].rank
	})

	selected := make([]candidate, 0, len(candidates))
	used := 0
	for _, c := range candidates {
		if used+c.tokens > budgetTokens {
			continue
		}
		selected = append(selected, c)
		used += c.tokens
	}

	// Render in retrieval order, not utility order, so the prompt leads
	// with the most relevant passages.
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].rank < selected[j].rank
	})

	var builder strings.Builder
	for i, c := range selected {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(fmt.Sprintf("[%d] %s", i+1, passageHeader(c.result)))
		builder.WriteString("\n")
		builder.WriteString(strings.TrimSpace(c.result.Content))

		packed.Citations = append(packed.Citations, Citation{
			ChunkRID:      c.result.ChunkRID,
			DocumentRID:   c.result.DocumentRID,
			DocumentTitle: c.result.DocumentTitle,
			DocumentSlug:  c.result.DocumentSlug,
			Heading:       c.result.Heading,
			Score:         c.result.Score,
		})
	}

	packed.Context = builder.String()
	packed.UsedTokens = used
	return packed
}

func passageHeader(result *model.RetrievalResult) string {
	switch {
	case result.DocumentTitle != "" && result.Heading != "":
		return result.DocumentTitle + " / " + result.Heading
	case result.DocumentTitle != "":
		return result.DocumentTitle
	case result.Heading != "":
		return result.Heading
	default:
		return result.DocumentRID.String()
	}
}
