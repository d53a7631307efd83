// Package chunker splits normalized document text into token- and
// char-budgeted pieces. It is a pure function of its input: no I/O, no
// shared state, safe for concurrent use.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/levkin/ragbase/model"
)

// charsPerToken is the heuristic used to estimate token counts (runes/4).
const charsPerToken = 4

// Piece is one produced chunk. StartChar/EndChar are rune offsets into the
// normalized text, so Content always equals that span of the text.
type Piece struct {
	Ordinal     int
	Content     string
	StartChar   int
	EndChar     int
	TokenCount  int
	SectionPath string
	Heading     string
	ContentHash string
}

// EstimateTokens estimates the token count of text as ceil(runes/4), with a
// floor of one token for non-empty text. The estimate is intentionally
// conservative so that rune-budgeted splits can never exceed a token budget.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for range text {
		n++
	}
	tokens := (n + charsPerToken - 1) / charsPerToken
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// Normalize canonicalizes line endings so that char ranges are stable across
// platforms.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Chunk splits text into ordered pieces honoring cfg. Invariants:
//   - every piece's token count is <= cfg.MaxTokens, even for a single
//     run-on sentence longer than the whole budget;
//   - piece char ranges cover the normalized text exactly once plus the
//     configured overlaps;
//   - the input is consumed monotonically, so chunking always terminates.
//
// An empty or whitespace-only document yields no pieces.
func Chunk(text string, cfg model.ChunkingConfig) []Piece {
	cfg = sanitize(cfg)
	normalized := Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return nil
	}

	runes := []rune(normalized)
	segments := segment(runes, cfg)

	budget := cfg.MaxTokens * charsPerToken
	if cfg.MaxChars > 0 && cfg.MaxChars < budget {
		budget = cfg.MaxChars
	}

	overlap := cfg.OverlapChars
	if t := cfg.OverlapTokens * charsPerToken; t > overlap {
		overlap = t
	}
	// Overlap may never eat more than half the budget, otherwise a chunk
	// could be born already overflowing.
	if overlap > budget/2 {
		overlap = budget / 2
	}

	b := builder{
		runes:   runes,
		budget:  budget,
		overlap: overlap,
	}

	for _, seg := range segments {
		switch seg.kind {
		case segHeading:
			b.closeChunk()
			b.setHeading(seg)
			b.add(seg)
		case segPageBreak:
			b.closeChunk()
		default:
			length := seg.end - seg.start
			if length > b.remaining() && b.open {
				b.closeChunk()
			}
			if length > b.remaining() {
				// A single sentence larger than the whole budget:
				// hard-split it into budget-sized units regardless of
				// sentence boundaries.
				b.hardSplit(seg)
				continue
			}
			b.add(seg)
		}
	}
	b.closeChunk()

	return b.pieces
}

func sanitize(cfg model.ChunkingConfig) model.ChunkingConfig {
	def := model.DefaultChunkingConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxChars < 0 {
		cfg.MaxChars = 0
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = 0
	}
	if cfg.OverlapChars < 0 {
		cfg.OverlapChars = 0
	}
	return cfg
}

// builder accumulates segments into the current chunk.
type builder struct {
	runes   []rune
	budget  int
	overlap int

	open        bool
	start       int // rune offset of chunk start, including seeded overlap
	end         int // rune offset one past the last accumulated segment
	heading     string
	sectionPath string
	// pending heading state for the next chunk
	stack  []headingLevel
	pieces []Piece
}

type headingLevel struct {
	level int
	text  string
}

func (b *builder) remaining() int {
	if !b.open {
		return b.budget - b.seedSize()
	}
	return b.budget - (b.end - b.start)
}

// seedSize returns the budget charged to a newly opened chunk for its seeded
// overlap, including the boundary whitespace between the previous chunk and
// the next segment.
func (b *builder) seedSize() int {
	if b.overlap == 0 || len(b.pieces) == 0 {
		return 0
	}
	return b.overlap + 2
}

func (b *builder) setHeading(seg span) {
	text := strings.TrimSpace(strings.TrimLeft(string(b.runes[seg.start:seg.end]), "# "))
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].level >= seg.level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	b.stack = append(b.stack, headingLevel{level: seg.level, text: text})
}

func (b *builder) currentPath() (path, heading string) {
	if len(b.stack) == 0 {
		return "", ""
	}
	parts := make([]string, len(b.stack))
	for i, h := range b.stack {
		parts[i] = h.text
	}
	return strings.Join(parts, " > "), b.stack[len(b.stack)-1].text
}

func (b *builder) add(seg span) {
	if !b.open {
		b.start = seg.start
		// Seed the new chunk with the tail of the previous one so
		// retrieval context is not lost at the boundary. Heading
		// boundaries start clean: sections are independent.
		if seed := b.seedSize(); seed > 0 && seg.kind != segHeading {
			prevEnd := b.pieces[len(b.pieces)-1].EndChar
			if prevEnd == seg.start || overlapTouches(prevEnd, seg.start) {
				b.start = seedStart(b.runes, prevEnd, seed)
			}
		}
		b.sectionPath, b.heading = b.currentPath()
		b.open = true
	}
	b.end = seg.end
}

// overlapTouches reports whether only whitespace separates the previous chunk
// end from the next segment, which is when overlap seeding applies.
func overlapTouches(prevEnd, next int) bool {
	return next >= prevEnd && next-prevEnd <= 2
}

// seedStart walks back from end by at most seed runes, snapping forward to
// the first whitespace boundary so the overlap starts on a whole word.
func seedStart(runes []rune, end, seed int) int {
	start := end - seed
	if start < 0 {
		start = 0
	}
	for i := start; i < end; i++ {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}
	return start
}

func (b *builder) closeChunk() {
	if !b.open {
		return
	}
	content := string(b.runes[b.start:b.end])
	if strings.TrimSpace(content) != "" {
		b.pieces = append(b.pieces, Piece{
			Ordinal:     len(b.pieces),
			Content:     content,
			StartChar:   b.start,
			EndChar:     b.end,
			TokenCount:  EstimateTokens(content),
			SectionPath: b.sectionPath,
			Heading:     b.heading,
			ContentHash: ContentHash(content),
		})
	}
	b.open = false
}

// hardSplit emits budget-sized sub-chunks of one oversized sentence,
// preferring to cut at whitespace. Every unit consumes at least one rune, so
// the loop always terminates.
func (b *builder) hardSplit(seg span) {
	b.closeChunk()
	path, heading := b.currentPath()

	pos := seg.start
	for pos < seg.end {
		start := pos
		if seed := b.seedSize(); seed > 0 && len(b.pieces) > 0 {
			prevEnd := b.pieces[len(b.pieces)-1].EndChar
			if prevEnd == pos {
				start = seedStart(b.runes, prevEnd, seed)
			}
		}
		end := start + b.budget
		if end > seg.end {
			end = seg.end
		} else {
			// Prefer a whitespace cut in the second half of the window.
			cut := end
			for i := end - 1; i > start+b.budget/2; i-- {
				if b.runes[i] == ' ' {
					cut = i
					break
				}
			}
			end = cut
		}
		if end <= pos {
			end = pos + 1
		}
		content := string(b.runes[start:end])
		b.pieces = append(b.pieces, Piece{
			Ordinal:     len(b.pieces),
			Content:     content,
			StartChar:   start,
			EndChar:     end,
			TokenCount:  EstimateTokens(content),
			SectionPath: path,
			Heading:     heading,
			ContentHash: ContentHash(content),
		})
		pos = end
		// Skip the whitespace we cut at.
		for pos < seg.end && b.runes[pos] == ' ' {
			pos++
		}
	}
}

// ContentHash returns the sha256 hex digest of normalized chunk content,
// the dedup key for idempotent re-indexing.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
