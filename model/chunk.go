package model

import (
	"time"

	"github.com/google/uuid"
)

// ChunkSet is the immutable result of chunking one document version with one
// chunking configuration. Exactly one set per document carries IsLatest;
// superseded sets stay around for audit but are excluded from retrieval.
type ChunkSet struct {
	ID         int64     `json:"id"`
	RID        uuid.UUID `json:"rid"`
	DocumentID int64     `json:"document_id"`
	VersionID  uuid.UUID `json:"version_id"`
	ConfigHash string    `json:"config_hash"`
	IsLatest   bool      `json:"is_latest"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a bounded contiguous span of a document's normalized text, the
// unit of embedding and retrieval. Chunks are immutable; a re-chunk produces
// a new ChunkSet.
type Chunk struct {
	ID             int64      `json:"id"`
	RID            uuid.UUID  `json:"rid"`
	ChunkSetID     int64      `json:"chunk_set_id"`
	Ordinal        int        `json:"ordinal"`
	Content        string     `json:"content"`
	StartChar      int        `json:"start_char"`
	EndChar        int        `json:"end_char"`
	TokenCount     int        `json:"token_count"`
	SectionPath    string     `json:"section_path,omitempty"`
	Heading        string     `json:"heading,omitempty"`
	ContentHash    string     `json:"content_hash"`
	VectorRecordID *uuid.UUID `json:"vector_record_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
