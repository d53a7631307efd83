package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ChunkingConfig controls how document text is split into chunks.
type ChunkingConfig struct {
	MaxTokens       int  `json:"max_tokens"`
	MaxChars        int  `json:"max_chars"`
	OverlapTokens   int  `json:"overlap_tokens"`
	OverlapChars    int  `json:"overlap_chars"`
	RespectHeadings bool `json:"respect_headings"`
	SplitByPages    bool `json:"split_by_pages"`
}

// DefaultChunkingConfig returns the configuration used when a knowledge base
// has no explicit indexing policy.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		MaxTokens:       400,
		MaxChars:        2000,
		OverlapTokens:   40,
		OverlapChars:    200,
		RespectHeadings: true,
		SplitByPages:    false,
	}
}

// Hash returns a stable digest of the configuration, used to tell chunk sets
// produced by different configurations apart.
func (c ChunkingConfig) Hash() string {
	s := fmt.Sprintf("%d|%d|%d|%d|%t|%t",
		c.MaxTokens, c.MaxChars, c.OverlapTokens, c.OverlapChars,
		c.RespectHeadings, c.SplitByPages)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// ChannelConfig holds weight and candidate limit for one retrieval channel.
type ChannelConfig struct {
	Weight float64 `json:"weight"`
	Limit  int     `json:"limit"`
}

// HybridConfig configures a hybrid retrieval query.
type HybridConfig struct {
	Lexical ChannelConfig `json:"lexical"`
	Vector  ChannelConfig `json:"vector"`
	// Collection is the workspace-scoped vector collection to search.
	Collection string `json:"collection"`
	TopK       int    `json:"top_k"`
	// SnippetLength bounds the length of result snippets in runes.
	SnippetLength int `json:"snippet_length"`
}

// DefaultHybridConfig returns the weights and limits used when the caller
// passes none.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Lexical:       ChannelConfig{Weight: 0.4, Limit: 20},
		Vector:        ChannelConfig{Weight: 0.6, Limit: 20},
		TopK:          8,
		SnippetLength: 240,
	}
}

// IndexingPolicy is the per-knowledge-base configuration resolved for each
// indexing job.
type IndexingPolicy struct {
	Chunking ChunkingConfig `json:"chunking"`
	// EmbeddingProviderID selects the embedding provider for the base.
	EmbeddingProviderID string `json:"embedding_provider_id"`
	// PayloadSchema optionally maps vector point payload fields to
	// templates rendered against the chunk context. Empty map means the
	// raw default payload schema.
	PayloadSchema map[string]string `json:"payload_schema,omitempty"`
}
