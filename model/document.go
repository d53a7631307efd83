package model

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Document represents one versioned text document inside a knowledge base.
// Content is transient: it is chunked and embedded, never stored as a column.
type Document struct {
	ID           int64     `json:"id"`
	RID          uuid.UUID `json:"rid"`
	WorkspaceRID uuid.UUID `json:"workspace_rid"`
	BaseRID      uuid.UUID `json:"base_rid"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	VersionID    uuid.UUID `json:"version_id"`
	Content      string    `json:"content,omitempty" db:"-"`
	Metadata     Metadata  `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Slugify derives a citation-link slug from a document title. Non-letter
// runs collapse to single dashes, everything else is lowercased.
func Slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
