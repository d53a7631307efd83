package model

import "github.com/google/uuid"

// SourceChannel tags which retrieval channel produced a result.
type SourceChannel string

const (
	SourceLexical SourceChannel = "lexical"
	SourceVector  SourceChannel = "vector"
	SourceBoth    SourceChannel = "both"
)

// RetrievalResult is one ranked chunk from a hybrid query. It is ephemeral
// and produced fresh per query, never persisted.
type RetrievalResult struct {
	ChunkRID      uuid.UUID     `json:"chunk_rid"`
	DocumentRID   uuid.UUID     `json:"document_rid"`
	Score         float64       `json:"score"`
	LexicalScore  float64       `json:"lexical_score,omitempty"`
	VectorScore   float64       `json:"vector_score,omitempty"`
	Source        SourceChannel `json:"source"`
	Snippet       string        `json:"snippet"`
	Content       string        `json:"content,omitempty"`
	DocumentTitle string        `json:"document_title,omitempty"`
	DocumentSlug  string        `json:"document_slug,omitempty"`
	Heading       string        `json:"heading,omitempty"`
	SectionPath   string        `json:"section_path,omitempty"`
	TokenCount    int           `json:"token_count,omitempty"`
	// Original per-channel ranks, kept for deterministic tie-breaking.
	LexicalRank int `json:"-"`
	VectorRank  int `json:"-"`
}

// RewriteResult is the outcome of the history-aware query rewriting step.
// It always carries a usable query, even when rewriting was skipped or the
// LLM call degraded.
type RewriteResult struct {
	OriginalQuery  string `json:"original_query"`
	RewrittenQuery string `json:"rewritten_query"`
	WasRewritten   bool   `json:"was_rewritten"`
	Reason         string `json:"reason"`
}

// EffectiveQuery returns the query retrieval should run with.
func (r RewriteResult) EffectiveQuery() string {
	if r.WasRewritten && r.RewrittenQuery != "" {
		return r.RewrittenQuery
	}
	return r.OriginalQuery
}

// HistoryMessage is one prior turn of the conversation, serialized into the
// rewrite prompt.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
