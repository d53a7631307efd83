package retrieval

import "strings"

// Snippet returns a bounded window of content centered on the first query
// term hit, with ellipses marking cut edges. maxLen is in runes.
func Snippet(content, query string, maxLen int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}

	center := firstHit(content, query)
	start := center - maxLen/2
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet = snippet + "…"
	}
	return snippet
}

// firstHit returns the rune offset of the first query term found in content,
// or 0 when no term matches. Terms shorter than three runes are skipped.
func firstHit(content, query string) int {
	lowered := strings.ToLower(content)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(term)) < 3 {
			continue
		}
		if idx := strings.Index(lowered, term); idx >= 0 {
			return len([]rune(lowered[:idx]))
		}
	}
	return 0
}
