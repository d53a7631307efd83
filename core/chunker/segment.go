package chunker

import (
	"unicode"

	"github.com/levkin/ragbase/model"
)

type segKind int

const (
	segSentence segKind = iota
	segHeading
	segPageBreak
)

// span is one sentence, heading line or page break, addressed by rune
// offsets into the normalized text.
type span struct {
	start int
	end   int
	kind  segKind
	level int // heading level, 1-6
}

// segment splits the normalized text into sentence and heading spans.
// Headings are markdown-style "#"-prefixed lines and only recognized when
// cfg.RespectHeadings is set; form feeds become page breaks only when
// cfg.SplitByPages is set.
func segment(runes []rune, cfg model.ChunkingConfig) []span {
	var spans []span

	lineStart := 0
	for i := 0; i <= len(runes); i++ {
		atEnd := i == len(runes)
		if !atEnd && runes[i] != '\n' && runes[i] != '\f' {
			continue
		}

		line := trimSpan(runes, lineStart, i)
		if line.end > line.start {
			if cfg.RespectHeadings {
				if level := headingLevelOf(runes, line); level > 0 {
					line.kind = segHeading
					line.level = level
					spans = append(spans, line)
				} else {
					spans = append(spans, sentences(runes, line)...)
				}
			} else {
				spans = append(spans, sentences(runes, line)...)
			}
		}

		if !atEnd && runes[i] == '\f' && cfg.SplitByPages {
			spans = append(spans, span{start: i, end: i + 1, kind: segPageBreak})
		}
		lineStart = i + 1
	}

	return spans
}

// headingLevelOf returns the markdown heading level of a line, or 0.
func headingLevelOf(runes []rune, line span) int {
	level := 0
	i := line.start
	for i < line.end && runes[i] == '#' {
		level++
		i++
	}
	if level == 0 || level > 6 || i >= line.end || runes[i] != ' ' {
		return 0
	}
	return level
}

// sentences splits one line into sentence spans. A sentence ends after a run
// of terminator punctuation followed by whitespace or the end of the line.
func sentences(runes []rune, line span) []span {
	var out []span

	start := line.start
	i := line.start
	for i < line.end {
		if !isTerminator(runes[i]) {
			i++
			continue
		}
		// Consume the whole terminator run plus trailing quotes/brackets.
		for i < line.end && (isTerminator(runes[i]) || isClosing(runes[i])) {
			i++
		}
		if i >= line.end || unicode.IsSpace(runes[i]) {
			if s := trimSpan(runes, start, i); s.end > s.start {
				out = append(out, s)
			}
			for i < line.end && unicode.IsSpace(runes[i]) {
				i++
			}
			start = i
		}
	}
	if s := trimSpan(runes, start, line.end); s.end > s.start {
		out = append(out, s)
	}

	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isClosing(r rune) bool {
	return r == ')' || r == ']' || r == '"' || r == '\'' || r == '»'
}

func trimSpan(runes []rune, start, end int) span {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return span{start: start, end: end}
}
